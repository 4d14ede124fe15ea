package subagents

import (
	"context"
	"strings"

	"github.com/clocktower/storytellerdm/internal/llm"
	"github.com/clocktower/storytellerdm/internal/storyteller"
)

// narrationTriggers are the event types that warrant a flavor line.
var narrationTriggers = []string{
	storyteller.EventGameStarted,
	storyteller.EventPhaseDay,
	storyteller.EventPhaseNight,
	storyteller.EventExecutionResolved,
	storyteller.EventGameEnded,
}

var staticNarration = map[string]string{
	storyteller.EventGameStarted:       "The town gathers as darkness falls on the first night.",
	storyteller.EventPhaseDay:          "The sun rises over the town square.",
	storyteller.EventPhaseNight:        "Night falls, and the town sleeps uneasily.",
	storyteller.EventExecutionResolved: "The town's judgment has been carried out.",
	storyteller.EventGameEnded:         "The game draws to a close.",
}

// Narrator adds atmosphere on major beats: game start, day/night
// transitions, executions, and game end. A static line is always
// available as a fallback if the model call fails.
type Narrator struct {
	newID  func() string
	router chatClient
}

// NewNarrator builds a Narrator sub-agent. router may be nil, in which
// case every narration falls back to its static line.
func NewNarrator(newID func() string, router chatClient) *Narrator {
	return &Narrator{newID: newID, router: router}
}

func (n *Narrator) Name() string { return "narrator" }

func (n *Narrator) Description() string {
	return "Adds atmospheric flavor text on phase transitions and major beats."
}

func (n *Narrator) Execute(ctx context.Context, agentCtx storyteller.AgentContext) (*storyteller.AgentOutput, error) {
	trigger := latestTrigger(agentCtx.RecentEvents)
	if trigger == "" {
		return &storyteller.AgentOutput{Confidence: 1.0}, nil
	}

	line := n.narrate(ctx, trigger, agentCtx)
	// type=narration lets downstream consumers distinguish flavor text
	// from other public messages without re-parsing content.
	action, err := buildAction(n.newID, ToolSendPublicMessage, map[string]any{
		"message": line,
		"from":    "storyteller",
		"type":    "narration",
	}, 3)
	if err != nil {
		return nil, err
	}
	return &storyteller.AgentOutput{
		Actions:    []storyteller.Action{action},
		Message:    "narrated " + trigger,
		Confidence: 0.7,
	}, nil
}

func (n *Narrator) narrate(ctx context.Context, trigger string, agentCtx storyteller.AgentContext) string {
	if n.router != nil {
		messages := []llm.Message{
			{Role: "system", Content: "You are the Storyteller narrating a Blood on the Clocktower game. Write one short, evocative sentence for the event described. No more than 30 words."},
			{Role: "user", Content: "Event: " + trigger},
		}
		resp, err := n.router.Chat(ctx, llm.TaskNarrator, messages, nil)
		if err == nil {
			if text := strings.TrimSpace(resp.FirstText()); text != "" {
				return text
			}
		}
	}
	return staticNarration[trigger]
}

func latestTrigger(events []storyteller.Event) string {
	matches := eventsOfType(events, narrationTriggers...)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1].Type
}

var _ storyteller.SubAgent = (*Narrator)(nil)
