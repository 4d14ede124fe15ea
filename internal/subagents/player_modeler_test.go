package subagents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

type fakePlayerModelStore struct {
	saved map[string]storyteller.PlayerModel
}

func (f *fakePlayerModelStore) SavePlayerModel(ctx context.Context, roomID string, model storyteller.PlayerModel) error {
	if f.saved == nil {
		f.saved = make(map[string]storyteller.PlayerModel)
	}
	f.saved[model.UserID] = model
	return nil
}

func voteEvent(actor string, yes bool) storyteller.Event {
	payload, _ := json.Marshal(map[string]bool{"vote": yes})
	return storyteller.Event{Type: storyteller.EventVoteCast, ActorUserID: actor, Payload: payload}
}

func TestPlayerModelerNoOpWithoutActorEvents(t *testing.T) {
	store := &fakePlayerModelStore{}
	p := NewPlayerModeler(store)
	out, err := p.Execute(context.Background(), storyteller.AgentContext{
		RecentEvents: []storyteller.Event{{Type: storyteller.EventPhaseDay}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(store.saved) != 0 || out.Confidence != 1.0 {
		t.Fatalf("expected no-op, got saved=%+v", store.saved)
	}
}

func TestPlayerModelerDerivesAggressiveFromNominations(t *testing.T) {
	store := &fakePlayerModelStore{}
	p := NewPlayerModeler(store)
	_, err := p.Execute(context.Background(), storyteller.AgentContext{
		RoomID: "room-1",
		RecentEvents: []storyteller.Event{
			{Type: storyteller.EventNominationCreated, ActorUserID: "user-1"},
			{Type: storyteller.EventNominationCreated, ActorUserID: "user-1"},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	model := store.saved["user-1"]
	if model.Playstyle != storyteller.PlaystyleAggressive {
		t.Fatalf("expected aggressive playstyle, got %q", model.Playstyle)
	}
}

func TestPlayerModelerDerivesVotingPatternTags(t *testing.T) {
	store := &fakePlayerModelStore{}
	p := NewPlayerModeler(store)
	_, err := p.Execute(context.Background(), storyteller.AgentContext{
		RoomID: "room-1",
		RecentEvents: []storyteller.Event{
			voteEvent("user-1", true),
			voteEvent("user-1", true),
			voteEvent("user-1", true),
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	model := store.saved["user-1"]
	if len(model.VotingPatternTags) != 1 || model.VotingPatternTags[0] != "always_yes" {
		t.Fatalf("expected always_yes tag, got %+v", model.VotingPatternTags)
	}
	if model.Playstyle != storyteller.PlaystyleAggressive {
		t.Fatalf("expected aggressive playstyle from 3 votes, got %q", model.Playstyle)
	}
}

func TestPlayerModelerQuietPlaystyle(t *testing.T) {
	store := &fakePlayerModelStore{}
	p := NewPlayerModeler(store)
	_, err := p.Execute(context.Background(), storyteller.AgentContext{
		RoomID: "room-1",
		RecentEvents: []storyteller.Event{
			{Type: storyteller.EventPublicChat, ActorUserID: "user-1"},
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	model := store.saved["user-1"]
	if model.Playstyle != storyteller.PlaystyleQuiet {
		t.Fatalf("expected quiet playstyle, got %q", model.Playstyle)
	}
}
