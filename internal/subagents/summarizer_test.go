package subagents

import (
	"context"
	"errors"
	"testing"

	"github.com/clocktower/storytellerdm/internal/llm"
	"github.com/clocktower/storytellerdm/internal/storyteller"
)

type fakeSummaryStore struct {
	savedRoomID string
	savedText   string
	err         error
}

func (f *fakeSummaryStore) SaveGameSummary(ctx context.Context, roomID, summary string) error {
	f.savedRoomID = roomID
	f.savedText = summary
	return f.err
}

func TestSummarizerNoOpWithoutNightPhase(t *testing.T) {
	store := &fakeSummaryStore{}
	s := NewSummarizer(idSequence(), nil, store, false)
	out, err := s.Execute(context.Background(), storyteller.AgentContext{
		RecentEvents: []storyteller.Event{{Type: storyteller.EventPublicChat}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Actions) != 0 || store.savedText != "" {
		t.Fatalf("expected no-op, got actions=%+v store=%q", out.Actions, store.savedText)
	}
}

func TestSummarizerPersistsRecapFromModel(t *testing.T) {
	store := &fakeSummaryStore{}
	client := fakeChatClient{resp: llm.ChatResponse{Choices: []llm.Choice{
		{Message: llm.Message{Content: "Two players were nominated; the town voted to execute one."}},
	}}}
	s := NewSummarizer(idSequence(), client, store, false)

	out, err := s.Execute(context.Background(), storyteller.AgentContext{
		RoomID: "room-1",
		RecentEvents: []storyteller.Event{
			{Type: storyteller.EventPhaseNight},
			{Type: storyteller.EventNominationCreated, ActorUserID: "user-1"},
			{Type: storyteller.EventExecutionResolved, ActorUserID: "user-2"},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Actions) != 0 {
		t.Fatalf("expected no public action without postPublicly, got %+v", out.Actions)
	}
	if store.savedRoomID != "room-1" || store.savedText == "" {
		t.Fatalf("expected recap persisted, got room=%q text=%q", store.savedRoomID, store.savedText)
	}
}

func TestSummarizerPostsPubliclyWhenEnabled(t *testing.T) {
	store := &fakeSummaryStore{}
	client := fakeChatClient{err: errors.New("backend unavailable")}
	s := NewSummarizer(idSequence(), client, store, true)

	out, err := s.Execute(context.Background(), storyteller.AgentContext{
		RoomID: "room-1",
		RecentEvents: []storyteller.Event{
			{Type: storyteller.EventPhaseNight},
			{Type: storyteller.EventVoteCast, ActorUserID: "user-1"},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Actions) != 1 || out.Actions[0].Type != ToolSendPublicMessage {
		t.Fatalf("expected one public message action, got %+v", out.Actions)
	}
	if store.savedText == "" {
		t.Fatalf("expected recap still persisted even on model failure")
	}
}
