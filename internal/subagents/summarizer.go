package subagents

import (
	"context"
	"fmt"
	"strings"

	"github.com/clocktower/storytellerdm/internal/llm"
	"github.com/clocktower/storytellerdm/internal/storyteller"
)

const summarizerEventWindow = 20

// summarizerEventTypes are the event kinds worth a line in the recap.
var summarizerEventTypes = []string{
	storyteller.EventPublicChat,
	storyteller.EventNominationCreated,
	storyteller.EventVoteCast,
	storyteller.EventExecutionResolved,
}

// summaryStore is the narrow persistence seam Summarizer needs.
type summaryStore interface {
	SaveGameSummary(ctx context.Context, roomID, summary string) error
}

// Summarizer recaps the night's events into a short bulletin, persisted
// for later retrieval and optionally posted to the room.
type Summarizer struct {
	newID        func() string
	router       chatClient
	store        summaryStore
	postPublicly bool
}

// NewSummarizer builds a Summarizer sub-agent. postPublicly controls
// whether the recap also becomes a public message action; it is always
// persisted via store regardless.
func NewSummarizer(newID func() string, router chatClient, store summaryStore, postPublicly bool) *Summarizer {
	return &Summarizer{newID: newID, router: router, store: store, postPublicly: postPublicly}
}

func (s *Summarizer) Name() string { return "summarizer" }

func (s *Summarizer) Description() string {
	return "Recaps recent events into a short bulletin after each night."
}

func (s *Summarizer) Execute(ctx context.Context, agentCtx storyteller.AgentContext) (*storyteller.AgentOutput, error) {
	if !containsEventType(agentCtx.RecentEvents, storyteller.EventPhaseNight) {
		return &storyteller.AgentOutput{Confidence: 1.0}, nil
	}

	bullets := recentBullets(agentCtx.RecentEvents)
	recap := s.recap(ctx, bullets)
	if recap == "" {
		return &storyteller.AgentOutput{Confidence: 0.2}, nil
	}

	if s.store != nil {
		if err := s.store.SaveGameSummary(ctx, agentCtx.RoomID, recap); err != nil {
			return nil, fmt.Errorf("subagents: save game summary: %w", err)
		}
	}

	out := &storyteller.AgentOutput{Message: "recapped the night", Confidence: 0.8}
	if s.postPublicly {
		action, err := buildAction(s.newID, ToolSendPublicMessage, map[string]string{
			"message": recap,
			"from":    "storyteller",
		}, 4)
		if err != nil {
			return nil, err
		}
		out.Actions = append(out.Actions, action)
	}
	return out, nil
}

func (s *Summarizer) recap(ctx context.Context, bullets []string) string {
	if len(bullets) == 0 {
		return ""
	}
	if s.router != nil {
		messages := []llm.Message{
			{Role: "system", Content: "Summarize these game events into a recap of 150 words or fewer."},
			{Role: "user", Content: strings.Join(bullets, "\n")},
		}
		resp, err := s.router.Chat(ctx, llm.TaskSummarizer, messages, nil)
		if err == nil {
			if text := strings.TrimSpace(resp.FirstText()); text != "" {
				return text
			}
		}
	}
	return strings.Join(bullets, " ")
}

// recentBullets renders the last summarizerEventWindow matching events as
// one bullet line each.
func recentBullets(events []storyteller.Event) []string {
	matches := eventsOfType(events, summarizerEventTypes...)
	if len(matches) > summarizerEventWindow {
		matches = matches[len(matches)-summarizerEventWindow:]
	}
	bullets := make([]string, 0, len(matches))
	for _, e := range matches {
		bullets = append(bullets, fmt.Sprintf("- %s by %s", e.Type, e.ActorUserID))
	}
	return bullets
}

var _ storyteller.SubAgent = (*Summarizer)(nil)
