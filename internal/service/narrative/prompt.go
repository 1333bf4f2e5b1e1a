package narrative

import (
	"fmt"

	"github.com/ManuelEspejo/DreamDX-AI/internal/model/dream"
)

// DefaultHistoryLimit bounds how many prior turns are sent to the
// provider when continuing a narrative. Oldest turns are dropped first.
const DefaultHistoryLimit = 20

// OpeningFrame prefixes the first narrator turn of every dream.
const OpeningFrame = "You open your eyes, this is the first thing that you see...\n\n"

const initialSystemPrompt = `You are the narrator of a dream the user is re-entering. Based on the dream description they give you, generate a descriptive environment for the beginning of the narrative.

Remember:
- Address the reader directly as the protagonist, making them feel like they're experiencing it firsthand.
- Use simple, conversational language, as if narrating a dream to a friend.
- Keep the story concise, use no more than 100 words.`

const continuationSystemPrompt = `You are the narrator of an ongoing dream. Continue the narrative focusing on the immediate next action and the current scene.

- Keep the narrative short but informative about the scene, no more than 100 words.
- Avoid using concluding phrases or wrapping up the story.
- Be creative and imaginative. Feel free to introduce new elements and unexpected twists.
- Avoid controlling the user's actions, just control the setup or characters.`

// Prompt is a provider-agnostic generation request: a system
// instruction, the bounded prior history in narrative order, and the
// user input that triggers this generation.
type Prompt struct {
	System  string
	History []dream.Turn
	Input   string
}

// PromptBuilder turns session history into a provider request. The
// alternation and persistence logic never depends on a specific
// prompting scheme; swap the builder to change it.
type PromptBuilder interface {
	// Build assembles a prompt from the full ordered turn history,
	// whose last element must be the pending user turn.
	Build(turns []dream.Turn) (*Prompt, error)
}

// dreamPromptBuilder is the default strategy: an opening-scene prompt
// for brand-new sessions, a continuation prompt with bounded history
// afterwards.
type dreamPromptBuilder struct {
	historyLimit int
}

// NewPromptBuilder returns the default builder. historyLimit caps how
// many prior turns accompany a continuation; values below 1 fall back
// to DefaultHistoryLimit.
func NewPromptBuilder(historyLimit int) PromptBuilder {
	if historyLimit < 1 {
		historyLimit = DefaultHistoryLimit
	}
	return &dreamPromptBuilder{historyLimit: historyLimit}
}

// Build implements PromptBuilder.
func (b *dreamPromptBuilder) Build(turns []dream.Turn) (*Prompt, error) {
	if len(turns) == 0 {
		return nil, fmt.Errorf("prompt assembly needs at least one turn")
	}

	last := turns[len(turns)-1]
	if last.Role != dream.RoleUser {
		return nil, fmt.Errorf("prompt assembly expects a trailing %s turn, got %s", dream.RoleUser, last.Role)
	}

	// First generation: the only turn is the dream description.
	if len(turns) == 1 {
		return &Prompt{
			System: initialSystemPrompt,
			Input:  last.Content,
		}, nil
	}

	history := turns[:len(turns)-1]
	if len(history) > b.historyLimit {
		history = history[len(history)-b.historyLimit:]
	}

	return &Prompt{
		System:  continuationSystemPrompt,
		History: history,
		Input:   last.Content,
	}, nil
}
