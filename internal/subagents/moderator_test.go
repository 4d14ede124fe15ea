package subagents

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

func idSequence() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestModeratorPromptsAfterSilentDiscussion(t *testing.T) {
	fixedNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewModerator(idSequence(), func() time.Time { return fixedNow })

	agentCtx := storyteller.AgentContext{
		Phase: storyteller.PhaseDay,
		RecentEvents: []storyteller.Event{
			{Type: storyteller.EventPublicChat, Timestamp: fixedNow.Add(-45 * time.Second)},
		},
		State: storyteller.GameState{Phase: storyteller.PhaseDay},
	}

	out, err := m.Execute(context.Background(), agentCtx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Actions) != 1 || out.Actions[0].Type != ToolSendPublicMessage {
		t.Fatalf("expected one public message action, got %+v", out.Actions)
	}
}

func TestModeratorSkipsPromptDuringActiveNomination(t *testing.T) {
	fixedNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewModerator(idSequence(), func() time.Time { return fixedNow })

	agentCtx := storyteller.AgentContext{
		Phase: storyteller.PhaseDay,
		RecentEvents: []storyteller.Event{
			{Type: storyteller.EventPublicChat, Timestamp: fixedNow.Add(-45 * time.Second)},
		},
		State: storyteller.GameState{
			Phase:      storyteller.PhaseDay,
			Nomination: &storyteller.NominationState{Nominator: "a", Nominee: "b"},
		},
	}

	out, err := m.Execute(context.Background(), agentCtx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Actions) != 0 {
		t.Fatalf("expected no actions, got %+v", out.Actions)
	}
}

func TestModeratorClosesVoteOnTimerExpiry(t *testing.T) {
	fixedNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewModerator(idSequence(), func() time.Time { return fixedNow })

	agentCtx := storyteller.AgentContext{
		Phase:         storyteller.PhaseNomination,
		TimerDeadline: map[string]int64{timerVote: fixedNow.Add(-1 * time.Second).Unix()},
		State:         storyteller.GameState{Phase: storyteller.PhaseNomination},
	}

	out, err := m.Execute(context.Background(), agentCtx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Actions) != 1 || out.Actions[0].Type != ToolToggleVoting {
		t.Fatalf("expected one toggle_voting action, got %+v", out.Actions)
	}
	var args struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(out.Actions[0].Args, &args); err != nil {
		t.Fatalf("unmarshal args: %v", err)
	}
	if args.Enabled {
		t.Fatalf("expected enabled=false to close the vote")
	}
}

func TestModeratorAdvancesToNightOnDayTimerExpiry(t *testing.T) {
	fixedNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewModerator(idSequence(), func() time.Time { return fixedNow })

	agentCtx := storyteller.AgentContext{
		Phase:         storyteller.PhaseDay,
		TimerDeadline: map[string]int64{timerDay: fixedNow.Add(-1 * time.Second).Unix()},
		State:         storyteller.GameState{Phase: storyteller.PhaseDay, Nomination: &storyteller.NominationState{}},
	}

	out, err := m.Execute(context.Background(), agentCtx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Actions) != 1 || out.Actions[0].Type != ToolAdvancePhase {
		t.Fatalf("expected one advance_phase action, got %+v", out.Actions)
	}
}

func TestModeratorPromptsPendingNightAbilities(t *testing.T) {
	fixedNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewModerator(idSequence(), func() time.Time { return fixedNow })

	agentCtx := storyteller.AgentContext{
		Phase: storyteller.PhaseNight,
		PendingInputs: []storyteller.PendingInput{
			{UserID: "user-1", Kind: "poison"},
			{UserID: "user-2", Kind: "protect"},
		},
		State: storyteller.GameState{Phase: storyteller.PhaseNight},
	}

	out, err := m.Execute(context.Background(), agentCtx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.Actions) != 4 {
		t.Fatalf("expected 4 actions (whisper+ask per pending player), got %d: %+v", len(out.Actions), out.Actions)
	}
	if out.Actions[0].Type != ToolSendPrivateMessage || out.Actions[1].Type != ToolRequestConfirmation {
		t.Fatalf("unexpected action order: %+v", out.Actions)
	}
}

func TestModeratorAdvancesToDayOnNightTimerExpiry(t *testing.T) {
	fixedNow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewModerator(idSequence(), func() time.Time { return fixedNow })

	agentCtx := storyteller.AgentContext{
		Phase:         storyteller.PhaseNight,
		TimerDeadline: map[string]int64{timerNight: fixedNow.Add(-1 * time.Second).Unix()},
		State:         storyteller.GameState{Phase: storyteller.PhaseNight},
	}

	out, err := m.Execute(context.Background(), agentCtx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	found := false
	for _, a := range out.Actions {
		if a.Type == ToolAdvancePhase {
			var args struct {
				Phase string `json:"phase"`
			}
			if err := json.Unmarshal(a.Args, &args); err != nil {
				t.Fatalf("unmarshal args: %v", err)
			}
			if args.Phase == string(storyteller.PhaseDay) {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected an advance_phase(day) action, got %+v", out.Actions)
	}
}
