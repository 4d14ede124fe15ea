// Package orchestrator drives the Sense, BuildContext, Plan, Execute,
// Observe, Reflect, Persist control loop that turns recent room events into
// planned tool actions once per run, plus the nightly maintenance job that
// reindexes the rules corpus and compacts short-term memory.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/clocktower/storytellerdm/internal/mcp"
	"github.com/clocktower/storytellerdm/internal/observability"
	"github.com/clocktower/storytellerdm/internal/storyteller"
)

// Config bounds one room's control loop.
type Config struct {
	MaxActionsPerRun     int
	RunInterval          time.Duration
	ActionTimeout        time.Duration
	MaxRetriesPerAction  int
	ShortTermMemorySize  int
	EnableReflection     bool
	EnablePlayerModeling bool
}

// DefaultConfig returns the control loop's default bounds.
func DefaultConfig() Config {
	return Config{
		MaxActionsPerRun:     10,
		RunInterval:          2 * time.Second,
		ActionTimeout:        30 * time.Second,
		MaxRetriesPerAction:  3,
		ShortTermMemorySize:  50,
		EnableReflection:     true,
		EnablePlayerModeling: true,
	}
}

// SubAgents names the five specialists consulted each run, in the fixed
// merge priority order: Moderator, Rules, Narrator, Summarizer,
// PlayerModeler. Any field left nil contributes nothing.
type SubAgents struct {
	Moderator     storyteller.SubAgent
	Rules         storyteller.SubAgent
	Narrator      storyteller.SubAgent
	Summarizer    storyteller.SubAgent
	PlayerModeler storyteller.SubAgent
}

func (s SubAgents) ordered() []storyteller.SubAgent {
	all := []storyteller.SubAgent{s.Moderator, s.Rules, s.Narrator, s.Summarizer, s.PlayerModeler}
	out := make([]storyteller.SubAgent, 0, len(all))
	for _, a := range all {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

// memoryManager is the narrow seam Orchestrator needs from
// *memory.Manager: the per-room short-term ring and the merged-retrieval
// query used to ground each run's context.
type memoryManager interface {
	ShortTermSnapshot(roomID string) []storyteller.MemoryEntry
	RetrieveRelevant(ctx context.Context, roomID, query string, topK int) ([]storyteller.MemoryEntry, error)
}

// toolInvoker is the narrow seam Orchestrator needs from *mcp.Registry.
type toolInvoker interface {
	Invoke(hctx mcp.HandlerContext, call mcp.RegToolCall) mcp.RegToolResult
}

// EventsReader reads events for roomID since sinceSeq, up to limit, oldest
// first — the same contract the get_recent_events tool exposes.
type EventsReader func(ctx context.Context, roomID string, sinceSeq int64, limit int) ([]storyteller.Event, error)

// Deps bundles every collaborator one Orchestrator instance needs.
type Deps struct {
	RoomID       string
	Config       Config
	Agents       SubAgents
	Memory       memoryManager
	LongTerm     storyteller.MemoryStore // optional: player models + summaries
	Registry     toolInvoker
	Dispatcher   storyteller.CommandDispatcher
	StateGetter  storyteller.StateGetter
	EventsReader EventsReader
	RunStore     storyteller.AgentRunStore
	NewID        func() string
	Now          func() time.Time
	Log          *observability.Logger
	Metrics      *observability.Metrics
	Tracer       *observability.Tracer
}

// Orchestrator drives one room's control loop. Bound to a single room for
// its whole lifetime, per the room-scoped configuration surface.
type Orchestrator struct {
	roomID       string
	cfg          Config
	agents       []storyteller.SubAgent
	memory       memoryManager
	longTerm     storyteller.MemoryStore
	registry     toolInvoker
	dispatcher   storyteller.CommandDispatcher
	stateGetter  storyteller.StateGetter
	eventsReader EventsReader
	runStore     storyteller.AgentRunStore
	newID        func() string
	now          func() time.Time
	log          *observability.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer

	mu        sync.RWMutex
	active    bool
	lastRunID string
	runCount  int
	lastSeq   int64

	stop chan struct{}
	done chan struct{}
}

// New builds an Orchestrator from deps, applying DefaultConfig for any
// zero-valued bound.
func New(deps Deps) *Orchestrator {
	cfg := deps.Config
	if cfg.MaxActionsPerRun <= 0 {
		cfg.MaxActionsPerRun = DefaultConfig().MaxActionsPerRun
	}
	if cfg.RunInterval <= 0 {
		cfg.RunInterval = DefaultConfig().RunInterval
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultConfig().ActionTimeout
	}
	if cfg.MaxRetriesPerAction <= 0 {
		cfg.MaxRetriesPerAction = DefaultConfig().MaxRetriesPerAction
	}
	if cfg.ShortTermMemorySize <= 0 {
		cfg.ShortTermMemorySize = DefaultConfig().ShortTermMemorySize
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	log := deps.Log
	if log == nil {
		log = observability.NewLogger(observability.LogConfig{})
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "storytellerdm"})
	}

	return &Orchestrator{
		roomID:       deps.RoomID,
		cfg:          cfg,
		agents:       deps.Agents.ordered(),
		memory:       deps.Memory,
		longTerm:     deps.LongTerm,
		registry:     deps.Registry,
		dispatcher:   deps.Dispatcher,
		stateGetter:  deps.StateGetter,
		eventsReader: deps.EventsReader,
		runStore:     deps.RunStore,
		newID:        deps.NewID,
		now:          now,
		log:          log.WithRoom(deps.RoomID),
		metrics:      deps.Metrics,
		tracer:       tracer,
	}
}

// Status is a point-in-time read of the loop's lifecycle state.
type Status struct {
	Active    bool
	LastRunID string
	RunCount  int
}

// Status returns the current lifecycle snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Status{Active: o.active, LastRunID: o.lastRunID, RunCount: o.runCount}
}

// Start begins the per-room ticker loop on a background goroutine. Calling
// Start twice without an intervening Stop is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return
	}
	o.active = true
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	o.mu.Unlock()

	go o.loop(ctx)
}

// Stop signals the loop to exit and blocks until it has.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	stop, done := o.stop, o.done
	o.mu.Unlock()

	close(stop)
	<-done

	o.mu.Lock()
	o.active = false
	o.mu.Unlock()
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.done)
	ticker := time.NewTicker(o.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.RunOnce(ctx); err != nil {
				o.log.Error(ctx, "orchestrator: run failed", "error", err)
			}
		}
	}
}
