package ingress

import (
	"context"
	"fmt"
	"strings"

	"github.com/clocktower/storytellerdm/internal/llm"
	"github.com/clocktower/storytellerdm/internal/storyteller"
)

// speakableEventTypes are the event types worth spending a model call on;
// everything else is acknowledged silently (normalize still runs, but no
// narration is attempted).
var speakableEventTypes = map[string]bool{
	storyteller.EventPhaseFirstNight:   true,
	storyteller.EventPhaseDay:          true,
	storyteller.EventPhaseNight:        true,
	storyteller.EventNominationCreated: true,
	storyteller.EventExecutionResolved: true,
	storyteller.EventGameStarted:       true,
	storyteller.EventGameEnded:         true,
	storyteller.EventDispute:           true,
	storyteller.EventRuleQuestion:      true,
}

// chatClient is the narrow seam onto *llm.Router.
type chatClient interface {
	Chat(ctx context.Context, task llm.TaskKind, messages []llm.Message, tools []llm.Tool) (llm.ChatResponse, error)
}

// ModelResponder is the default Responder: it asks the router for one
// short in-character line per speakable event and declines to speak for
// everything else.
type ModelResponder struct {
	router chatClient
}

// NewModelResponder builds a ModelResponder. router may be nil, in which
// case Respond returns an error for every speakable event and ingress falls
// through to the per-event-type default message (if any).
func NewModelResponder(router chatClient) *ModelResponder {
	return &ModelResponder{router: router}
}

func (m *ModelResponder) Respond(ctx context.Context, evt internalEvent) (ProcessResult, error) {
	if !speakableEventTypes[evt.Type] {
		return ProcessResult{}, nil
	}
	if m.router == nil {
		return ProcessResult{}, fmt.Errorf("ingress: no model router configured")
	}

	messages := []llm.Message{
		{Role: "system", Content: "You are the Storyteller moderating a Blood on the Clocktower game. " +
			"Given one game event, decide whether a brief announcement is warranted and, if so, write it. " +
			"Keep it under 40 words and in character. Respond with the announcement text only, or an empty reply if nothing needs saying."},
		{Role: "user", Content: evt.Description},
	}

	resp, err := m.router.Chat(ctx, llm.TaskNarrator, messages, nil)
	if err != nil {
		return ProcessResult{}, err
	}

	text := strings.TrimSpace(resp.FirstText())
	if text == "" {
		return ProcessResult{}, nil
	}
	return ProcessResult{ShouldSpeak: true, Message: text}, nil
}

var _ Responder = (*ModelResponder)(nil)
