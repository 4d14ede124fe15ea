package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/clocktower/storytellerdm/internal/mcp"
	"github.com/clocktower/storytellerdm/internal/storyteller"
)

type fakeSubAgent struct {
	name  string
	out   *storyteller.AgentOutput
	err   error
	calls int
}

func (f *fakeSubAgent) Name() string        { return f.name }
func (f *fakeSubAgent) Description() string { return "fake" }
func (f *fakeSubAgent) Execute(ctx context.Context, agentCtx storyteller.AgentContext) (*storyteller.AgentOutput, error) {
	f.calls++
	return f.out, f.err
}

type fakeMemory struct{}

func (fakeMemory) ShortTermSnapshot(roomID string) []storyteller.MemoryEntry { return nil }
func (fakeMemory) RetrieveRelevant(ctx context.Context, roomID, query string, topK int) ([]storyteller.MemoryEntry, error) {
	return nil, nil
}

type fakeRunStore struct {
	saved []storyteller.AgentRun
}

func (f *fakeRunStore) SaveRun(ctx context.Context, run storyteller.AgentRun) error {
	f.saved = append(f.saved, run)
	return nil
}
func (f *fakeRunStore) SaveToolCall(ctx context.Context, runID string, audit storyteller.ToolCallAudit) error {
	return nil
}
func (f *fakeRunStore) ListRuns(ctx context.Context, roomID string, limit int) ([]storyteller.AgentRun, error) {
	return f.saved, nil
}

func sequentialID() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestRegistry(t *testing.T) *mcp.Registry {
	t.Helper()
	r := mcp.NewRegistry()
	if err := mcp.RegisterCanonicalTools(r); err != nil {
		t.Fatalf("RegisterCanonicalTools: %v", err)
	}
	return r
}

type fakeDispatcher struct {
	dispatched []storyteller.CommandEnvelope
}

func (f *fakeDispatcher) DispatchAsync(ctx context.Context, cmd storyteller.CommandEnvelope) error {
	f.dispatched = append(f.dispatched, cmd)
	return nil
}

func noEvents(ctx context.Context, roomID string, sinceSeq int64, limit int) ([]storyteller.Event, error) {
	return nil, nil
}

func TestRunOnceMergesActionsInPriorityOrderAndPersists(t *testing.T) {
	moderatorAction := storyteller.Action{ID: "a1", Type: "send_public_message", Args: json.RawMessage(`{"message":"from moderator"}`)}
	rulesAction := storyteller.Action{ID: "a2", Type: "send_public_message", Args: json.RawMessage(`{"message":"from rules"}`)}

	moderator := &fakeSubAgent{name: "moderator", out: &storyteller.AgentOutput{Actions: []storyteller.Action{moderatorAction}, Message: "moderator spoke"}}
	rules := &fakeSubAgent{name: "rules", out: &storyteller.AgentOutput{Actions: []storyteller.Action{rulesAction}}}

	dispatcher := &fakeDispatcher{}
	runStore := &fakeRunStore{}
	registry := newTestRegistry(t)

	o := New(Deps{
		RoomID: "room-1",
		Agents: SubAgents{Moderator: moderator, Rules: rules},
		Memory: fakeMemory{},
		Registry: registry,
		Dispatcher: dispatcher,
		EventsReader: noEvents,
		RunStore: runStore,
		NewID:    sequentialID(),
		Now:      func() time.Time { return time.Unix(0, 0) },
	})

	run, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if run.Status != storyteller.RunCompleted {
		t.Fatalf("expected completed status, got %q (%s)", run.Status, run.ErrorText)
	}
	if len(dispatcher.dispatched) != 2 {
		t.Fatalf("expected 2 dispatched commands, got %d", len(dispatcher.dispatched))
	}
	if dispatcher.dispatched[0].Payload == nil || !strings.Contains(string(dispatcher.dispatched[0].Payload), "from moderator") {
		t.Fatalf("expected moderator's action to execute first, got %+v", dispatcher.dispatched)
	}
	if len(runStore.saved) != 1 {
		t.Fatalf("expected one persisted run, got %d", len(runStore.saved))
	}
	if !strings.Contains(string(runStore.saved[0].PlanJSON), "moderator spoke") {
		t.Fatalf("expected moderator's message to survive as plan reasoning, got %s", runStore.saved[0].PlanJSON)
	}
}

func TestRunOnceSkipsDisabledSummarizerAndPlayerModeler(t *testing.T) {
	summarizer := &fakeSubAgent{name: "summarizer", out: &storyteller.AgentOutput{Message: "recap"}}
	playerModeler := &fakeSubAgent{name: "player_modeler", out: &storyteller.AgentOutput{}}

	o := New(Deps{
		RoomID: "room-1",
		Config: Config{EnableReflection: false, EnablePlayerModeling: false},
		Agents: SubAgents{Summarizer: summarizer, PlayerModeler: playerModeler},
		Memory: fakeMemory{},
		Registry: newTestRegistry(t),
		EventsReader: noEvents,
		RunStore: &fakeRunStore{},
		NewID:    sequentialID(),
	})

	if _, err := o.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summarizer.calls != 0 {
		t.Fatalf("expected summarizer to be skipped when EnableReflection is false")
	}
	if playerModeler.calls != 0 {
		t.Fatalf("expected player_modeler to be skipped when EnablePlayerModeling is false")
	}
}

func TestRunOnceAbortsOnSenseFailure(t *testing.T) {
	runStore := &fakeRunStore{}
	o := New(Deps{
		RoomID:       "room-1",
		EventsReader: nil, // triggers the "no events reader configured" sense failure
		RunStore:     runStore,
		NewID:        sequentialID(),
	})

	run, err := o.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected sense failure to abort the run")
	}
	if run.Status != storyteller.RunError {
		t.Fatalf("expected error status, got %q", run.Status)
	}
	if len(runStore.saved) != 1 || runStore.saved[0].Status != storyteller.RunError {
		t.Fatalf("expected the aborted run to still be persisted")
	}
}

func TestRunOnceRetriesFailedActionWithBackoffThenGivesUp(t *testing.T) {
	registry := mcp.NewRegistry()
	attempts := 0
	err := registry.Register(mcp.RegToolDefinition{
		Name:       "always_fails",
		Parameters: map[string]mcp.ParamSchema{},
	}, func(hctx mcp.HandlerContext, params json.RawMessage) (json.RawMessage, error) {
		attempts++
		return nil, errors.New("boom")
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	moderator := &fakeSubAgent{name: "moderator", out: &storyteller.AgentOutput{
		Actions: []storyteller.Action{{ID: "a1", Type: "always_fails", Args: json.RawMessage(`{}`)}},
	}}

	o := New(Deps{
		RoomID:       "room-1",
		Config:       Config{MaxRetriesPerAction: 2, ActionTimeout: time.Second},
		Agents:       SubAgents{Moderator: moderator},
		Memory:       fakeMemory{},
		Registry:     registry,
		EventsReader: noEvents,
		RunStore:     &fakeRunStore{},
		NewID:        sequentialID(),
	})

	run, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("a failed action must not abort the run: %v", err)
	}
	if run.Status != storyteller.RunCompleted {
		t.Fatalf("expected completed status despite the failed action, got %q", run.Status)
	}
	if attempts != 3 {
		t.Fatalf("expected 1 initial attempt + 2 retries = 3 invocations, got %d", attempts)
	}
	if len(run.Audits) != 1 || run.Audits[0].Error == "" {
		t.Fatalf("expected a failed audit recorded, got %+v", run.Audits)
	}
}
