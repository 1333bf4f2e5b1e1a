package narrative

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ManuelEspejo/DreamDX-AI/internal/model/dream"
	"github.com/ManuelEspejo/DreamDX-AI/internal/service/session"
)

// Generator is the narrow contract the orchestrator needs from the
// narrative provider. Implementations carry no retry logic; retries
// stay here so backoff policy is centralized.
type Generator interface {
	// Generate produces the next narrator passage for the prompt.
	Generate(ctx context.Context, p *Prompt) (string, error)

	// Stream produces the same passage incrementally, calling emit
	// for each delta, and returns the concatenated result.
	Stream(ctx context.Context, p *Prompt, emit func(delta string)) (string, error)
}

// Orchestrator builds prompts from session history, invokes the
// provider, and applies results back through the session manager. It
// holds no session state of its own.
type Orchestrator struct {
	sessions *session.Manager
	gen      Generator
	prompts  PromptBuilder
}

// NewOrchestrator wires the narrative pipeline. A nil prompts falls
// back to the default builder.
func NewOrchestrator(sessions *session.Manager, gen Generator, prompts PromptBuilder) *Orchestrator {
	if prompts == nil {
		prompts = NewPromptBuilder(DefaultHistoryLimit)
	}
	return &Orchestrator{
		sessions: sessions,
		gen:      gen,
		prompts:  prompts,
	}
}

// Start creates a session from the dream description and generates its
// opening narrator turn. If generation fails the session survives with
// the description turn only, ready for a retried continuation; the
// partially created session is returned alongside the error.
func (o *Orchestrator) Start(ctx context.Context, ownerID, description string) (*dream.Session, dream.Turn, error) {
	sess, err := o.sessions.Create(ctx, ownerID, description)
	if err != nil {
		return nil, dream.Turn{}, err
	}

	p, err := o.prompts.Build(sess.Turns)
	if err != nil {
		return sess, dream.Turn{}, generationError(err)
	}

	content, err := o.gen.Generate(ctx, p)
	if err != nil {
		return sess, dream.Turn{}, generationError(err)
	}

	updated, err := o.sessions.AppendTurn(ctx, sess.ID, ownerID, dream.RoleNarrator, OpeningFrame+content, sess.Version)
	if err != nil {
		return sess, dream.Turn{}, err
	}

	turn, _ := updated.LastTurn()
	log.Printf("[narrative] started session=%s owner=%s", updated.ID, ownerID)
	return updated, turn, nil
}

// Continue runs one narrative continuation: persist the user turn,
// assemble a prompt from history, generate, persist the narrator turn.
// Returns the narrator turn and the session version after it landed.
func (o *Orchestrator) Continue(ctx context.Context, sessionID, ownerID, input string) (dream.Turn, int64, error) {
	return o.run(ctx, sessionID, ownerID, input, func(ctx context.Context, p *Prompt) (string, error) {
		return o.gen.Generate(ctx, p)
	})
}

// ContinueStream is Continue with incremental delivery: emit receives
// each generated delta before the concatenated narrator turn is
// persisted. Persistence semantics are identical to Continue.
func (o *Orchestrator) ContinueStream(ctx context.Context, sessionID, ownerID, input string, emit func(delta string)) (dream.Turn, int64, error) {
	return o.run(ctx, sessionID, ownerID, input, func(ctx context.Context, p *Prompt) (string, error) {
		return o.gen.Stream(ctx, p, emit)
	})
}

func (o *Orchestrator) run(ctx context.Context, sessionID, ownerID, input string, generate func(context.Context, *Prompt) (string, error)) (dream.Turn, int64, error) {
	sess, err := o.appendUserTurn(ctx, sessionID, ownerID, input)
	if err != nil {
		return dream.Turn{}, 0, err
	}

	p, err := o.prompts.Build(sess.Turns)
	if err != nil {
		return dream.Turn{}, sess.Version, generationError(err)
	}

	content, err := generate(ctx, p)
	if err != nil {
		// The user turn stays persisted; the session remains
		// active and awaits a retried continuation.
		return dream.Turn{}, sess.Version, generationError(err)
	}

	final, err := o.sessions.AppendTurn(ctx, sessionID, ownerID, dream.RoleNarrator, content, sess.Version)
	if err != nil {
		return dream.Turn{}, sess.Version, err
	}

	turn, _ := final.LastTurn()
	log.Printf("[narrative] continued session=%s owner=%s version=%d", sessionID, ownerID, final.Version)
	return turn, final.Version, nil
}

// appendUserTurn persists the user's input with optimistic concurrency,
// retrying exactly once on a version conflict before surfacing it.
// A session whose last turn is already a user turn carries input from
// an earlier continuation that failed mid-generation; that turn is
// reused instead of appended, so the retried request picks up where
// the failure left off.
func (o *Orchestrator) appendUserTurn(ctx context.Context, sessionID, ownerID, input string) (*dream.Session, error) {
	sess, err := o.sessions.Get(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if sess.Status == dream.StatusEnded {
		return nil, fmt.Errorf("%w: session has ended", dream.ErrInvalidState)
	}
	if hasPendingUserTurn(sess) {
		return sess, nil
	}

	updated, err := o.sessions.AppendTurn(ctx, sessionID, ownerID, dream.RoleUser, input, sess.Version)
	if errors.Is(err, dream.ErrConflict) {
		sess, err = o.sessions.Get(ctx, sessionID, ownerID)
		if err != nil {
			return nil, err
		}
		if hasPendingUserTurn(sess) {
			return sess, nil
		}
		updated, err = o.sessions.AppendTurn(ctx, sessionID, ownerID, dream.RoleUser, input, sess.Version)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// hasPendingUserTurn reports whether the session already ends on a user
// turn awaiting its narrator reply.
func hasPendingUserTurn(sess *dream.Session) bool {
	last, ok := sess.LastTurn()
	return ok && last.Role == dream.RoleUser
}

// generationError keeps provider-specific kinds intact and folds
// everything else into the generic generation failure.
func generationError(err error) error {
	if errors.Is(err, dream.ErrProviderTimeout) || errors.Is(err, dream.ErrProviderRejected) {
		return err
	}
	return fmt.Errorf("%w: %v", dream.ErrGeneration, err)
}
