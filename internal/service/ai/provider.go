package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/ManuelEspejo/DreamDX-AI/internal/config"
	"github.com/ManuelEspejo/DreamDX-AI/internal/model/dream"
	"github.com/ManuelEspejo/DreamDX-AI/internal/service/narrative"
)

// Service is the narrative provider adapter: a stateless wrapper over
// the Ark chat model, compiled into an eino chain. It satisfies the
// orchestrator's Generator contract and keeps every provider-specific
// type behind this package.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the generation chain from the configured model.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile generation chain: %w", err)
	}

	return &Service{chain: runnable}, nil
}

// Generate implements narrative.Generator.
func (s *Service) Generate(ctx context.Context, p *narrative.Prompt) (string, error) {
	response, err := s.chain.Invoke(ctx, chainInput(p))
	if err != nil {
		return "", classify(err)
	}

	content := strings.TrimSpace(response.Content)
	if content == "" {
		return "", fmt.Errorf("%w: model returned empty content", dream.ErrProviderRejected)
	}

	log.Printf("[ai] generated passage, length=%d", len(content))
	return content, nil
}

// Stream implements narrative.Generator. Deltas are forwarded to emit
// as they arrive; the concatenated passage is returned once the stream
// drains.
func (s *Service) Stream(ctx context.Context, p *narrative.Prompt, emit func(delta string)) (string, error) {
	stream, err := s.chain.Stream(ctx, chainInput(p))
	if err != nil {
		return "", classify(err)
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", classify(recvErr)
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" && emit != nil {
			emit(chunk.Content)
		}
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("%w: %v", dream.ErrProviderRejected, err)
	}

	content := strings.TrimSpace(response.Content)
	if content == "" {
		return "", fmt.Errorf("%w: model returned empty content", dream.ErrProviderRejected)
	}
	return content, nil
}

func chainInput(p *narrative.Prompt) map[string]any {
	return map[string]any{
		"system":  p.System,
		"history": toHistory(p.History),
		"query":   p.Input,
	}
}

func toHistory(turns []dream.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case dream.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case dream.RoleNarrator:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}

// classify maps transport failures onto the domain taxonomy. Deadline
// expiry set by the caller is a provider timeout; anything else counts
// as a provider rejection.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", dream.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %v", dream.ErrProviderRejected, err)
}
