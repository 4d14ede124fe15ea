package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clocktower/storytellerdm/internal/mcp"
	"github.com/clocktower/storytellerdm/internal/storyteller"
)

// senseResult is the window of recent events a run observes, bounded by
// ShortTermMemorySize.
type senseResult struct {
	events  []storyteller.Event
	seqFrom int64
	seqTo   int64
	phase   storyteller.Phase
	state   storyteller.GameState
}

// RunOnce executes one full Sense -> BuildContext -> Plan -> Execute ->
// Observe -> Reflect -> Persist iteration and returns the persisted run
// record. A Sense or Plan failure aborts the run early with status "error";
// individual sub-agent or action failures are recorded but never abort it.
func (o *Orchestrator) RunOnce(ctx context.Context) (storyteller.AgentRun, error) {
	start := o.now()
	runID := o.newID()

	ctx, span := o.tracer.Start(ctx, "orchestrator.run")
	defer span.End()

	sensed, err := o.sense(ctx)
	if err != nil {
		return o.persistAborted(ctx, runID, start, 0, 0, err)
	}

	agentCtx := o.buildContext(ctx, runID, sensed)

	inputDigest, err := hashDigest(agentCtx)
	if err != nil {
		return o.persistAborted(ctx, runID, start, sensed.seqFrom, sensed.seqTo, err)
	}

	plan, err := o.plan(ctx, runID, agentCtx)
	if err != nil {
		return o.persistAborted(ctx, runID, start, sensed.seqFrom, sensed.seqTo, err)
	}

	audits := o.execute(ctx, plan)

	run := o.observe(runID, sensed, plan, audits, start, inputDigest)
	o.reflect(ctx, sensed, plan)
	o.persist(ctx, run)

	o.mu.Lock()
	o.lastRunID = run.ID
	o.runCount++
	o.lastSeq = sensed.seqTo
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RunDuration.WithLabelValues(string(run.Status)).Observe(run.Latency.Seconds())
		o.metrics.RunCounter.WithLabelValues(string(run.Status)).Inc()
	}
	return run, nil
}

// sense reads the event window since the last processed sequence number and
// refreshes the game-state mirror from the engine snapshot. A snapshot the
// agent cannot interpret is logged and skipped; the event window still
// advances (spec's StateMismatch error kind).
func (o *Orchestrator) sense(ctx context.Context) (senseResult, error) {
	o.mu.RLock()
	sinceSeq := o.lastSeq
	o.mu.RUnlock()

	if o.eventsReader == nil {
		return senseResult{}, fmt.Errorf("orchestrator: no events reader configured")
	}
	events, err := o.eventsReader(ctx, o.roomID, sinceSeq, o.cfg.ShortTermMemorySize)
	if err != nil {
		return senseResult{}, fmt.Errorf("orchestrator: sense: %w", err)
	}

	var state storyteller.GameState
	var phase storyteller.Phase
	if o.stateGetter != nil {
		if engineState, err := o.stateGetter(ctx, o.roomID); err != nil {
			o.log.Warn(ctx, "orchestrator: state snapshot unavailable, continuing without it", "error", err)
		} else {
			state = storyteller.GameState{
				Phase:      engineState.Phase(),
				Day:        engineState.DayCount(),
				Players:    engineState.Players(),
				Nomination: engineState.NominationQueue(),
				LastSeq:    engineState.LastSeq(),
			}
			phase = state.Phase
		}
	}

	seqTo := sinceSeq
	for _, e := range events {
		if e.Seq > seqTo {
			seqTo = e.Seq
		}
	}
	return senseResult{events: events, seqFrom: sinceSeq, seqTo: seqTo, phase: phase, state: state}, nil
}

// buildContext assembles the read-only bundle every sub-agent receives,
// merging the short-term window with long-term recall grounded on the most
// recent event (or the current phase, if the room has gone quiet).
func (o *Orchestrator) buildContext(ctx context.Context, runID string, sensed senseResult) storyteller.AgentContext {
	agentCtx := storyteller.AgentContext{
		RunID:        runID,
		RoomID:       o.roomID,
		Phase:        sensed.phase,
		RecentEvents: sensed.events,
		State:        sensed.state,
	}

	query := string(sensed.phase)
	if n := len(sensed.events); n > 0 {
		query = sensed.events[n-1].Type
	}

	if o.memory != nil {
		agentCtx.Memory.ShortTerm = o.memory.ShortTermSnapshot(o.roomID)
		if relevant, err := o.memory.RetrieveRelevant(ctx, o.roomID, query, 5); err != nil {
			o.log.Warn(ctx, "orchestrator: retrieve relevant memory failed", "error", err)
		} else {
			agentCtx.Memory.LongTerm = relevant
		}
	}
	if o.longTerm != nil {
		if models, err := o.longTerm.GetPlayerModels(ctx, o.roomID); err != nil {
			o.log.Warn(ctx, "orchestrator: load player models failed", "error", err)
		} else {
			agentCtx.Memory.PlayerModels = models
		}
		if summary, err := o.longTerm.GetGameSummary(ctx, o.roomID); err != nil {
			o.log.Warn(ctx, "orchestrator: load game summary failed", "error", err)
		} else {
			agentCtx.Memory.GameSummary = summary
		}
	}
	return agentCtx
}

// plan consults every enabled sub-agent in the fixed priority order
// (moderator, rules, narrator, summarizer, player_modeler), merging their
// actions in that order. A sub-agent error is logged and contributes
// nothing; it never aborts the run.
func (o *Orchestrator) plan(ctx context.Context, runID string, agentCtx storyteller.AgentContext) (storyteller.Plan, error) {
	p := storyteller.Plan{ID: runID, RoomID: o.roomID, Confidence: 1.0}

	for _, agent := range o.agents {
		if !o.subAgentEnabled(agent) {
			continue
		}
		agentStart := o.now()
		out, err := agent.Execute(ctx, agentCtx)
		outcome := "success"
		if err != nil {
			outcome = "error"
			o.log.Warn(ctx, "orchestrator: sub-agent failed, continuing without its contribution",
				"agent", agent.Name(), "error", err)
		}
		if o.metrics != nil {
			o.metrics.SubAgentDuration.WithLabelValues(agent.Name(), outcome).Observe(o.now().Sub(agentStart).Seconds())
			o.metrics.SubAgentCounter.WithLabelValues(agent.Name(), outcome).Inc()
		}
		if err != nil || out == nil {
			continue
		}
		p.Actions = append(p.Actions, out.Actions...)
		if p.Reasoning == "" && out.Message != "" {
			p.Reasoning = out.Message
		}
	}

	if len(p.Actions) > o.cfg.MaxActionsPerRun {
		p.Actions = p.Actions[:o.cfg.MaxActionsPerRun]
	}
	return p, nil
}

// subAgentEnabled applies the EnableReflection/EnablePlayerModeling feature
// gates to the Summarizer and PlayerModeler specifically; the other three
// sub-agents always run.
func (o *Orchestrator) subAgentEnabled(agent storyteller.SubAgent) bool {
	switch agent.Name() {
	case "summarizer":
		return o.cfg.EnableReflection
	case "player_modeler":
		return o.cfg.EnablePlayerModeling
	default:
		return true
	}
}

// execute runs every planned action through the tool registry, retrying
// failures with a linear backoff. A single action's exhausted retries are
// recorded as a failed audit and execution continues with the next action.
func (o *Orchestrator) execute(ctx context.Context, plan storyteller.Plan) []storyteller.ToolCallAudit {
	audits := make([]storyteller.ToolCallAudit, 0, len(plan.Actions))
	for _, action := range plan.Actions {
		audits = append(audits, o.executeAction(ctx, action))
	}
	return audits
}

func (o *Orchestrator) executeAction(ctx context.Context, action storyteller.Action) storyteller.ToolCallAudit {
	hctx := mcp.HandlerContext{
		RoomID:     o.roomID,
		Dispatcher: o.dispatcher,
		State:      o.stateGetter,
		NewID:      o.newID,
		Events:     o.eventsReader,
	}

	maxAttempts := o.cfg.MaxRetriesPerAction + 1
	var last mcp.RegToolResult
	var duration time.Duration

	for attempt := 0; attempt < maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.ActionTimeout)
		hctx.Ctx = attemptCtx
		attemptStart := o.now()
		last = o.registry.Invoke(hctx, mcp.RegToolCall{ID: action.ID, Name: action.Type, Params: action.Args, Timestamp: attemptStart})
		duration = o.now().Sub(attemptStart)
		cancel()

		outcome := "success"
		if !last.Success {
			outcome = "error"
		}
		if o.metrics != nil {
			o.metrics.ActionDuration.WithLabelValues(action.Type, outcome).Observe(duration.Seconds())
			o.metrics.ActionCounter.WithLabelValues(action.Type, outcome).Inc()
		}

		if last.Success {
			break
		}
		if attempt < maxAttempts-1 {
			o.log.Warn(ctx, "orchestrator: action failed, retrying",
				"tool", action.Type, "attempt", attempt+1, "error", last.Error)
			time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
		}
	}

	audit := storyteller.ToolCallAudit{
		ToolName: action.Type,
		Args:     action.Args,
		Error:    last.Error,
		Duration: duration,
	}
	if last.Success {
		audit.Result = last.Result
	} else {
		o.log.Error(ctx, "orchestrator: action exhausted retries", "tool", action.Type, "error", last.Error)
	}
	return audit
}

// observe assembles the run record from the plan and executed audits.
func (o *Orchestrator) observe(runID string, sensed senseResult, plan storyteller.Plan, audits []storyteller.ToolCallAudit, start time.Time, inputDigest string) storyteller.AgentRun {
	planJSON, _ := json.Marshal(plan)
	outputDigest, _ := hashDigest(struct {
		Plan   storyteller.Plan            `json:"plan"`
		Audits []storyteller.ToolCallAudit `json:"audits"`
	}{plan, audits})

	return storyteller.AgentRun{
		ID:           runID,
		RoomID:       o.roomID,
		AgentName:    "orchestrator",
		SeqFrom:      sensed.seqFrom,
		SeqTo:        sensed.seqTo,
		InputDigest:  inputDigest,
		OutputDigest: outputDigest,
		PlanJSON:     planJSON,
		Audits:       audits,
		Status:       storyteller.RunCompleted,
		Latency:      o.now().Sub(start),
		StartedAt:    start,
	}
}

// reflect is a thin hook for post-run bookkeeping beyond what Summarizer
// already persists (e.g. future self-critique passes); currently a no-op
// unless EnableReflection is off, in which case it logs that the run
// produced no recap.
func (o *Orchestrator) reflect(ctx context.Context, sensed senseResult, plan storyteller.Plan) {
	if !o.cfg.EnableReflection {
		o.log.Debug(ctx, "orchestrator: reflection disabled, skipping recap bookkeeping")
	}
}

func (o *Orchestrator) persist(ctx context.Context, run storyteller.AgentRun) {
	if o.runStore == nil {
		return
	}
	if err := o.runStore.SaveRun(ctx, run); err != nil {
		o.log.Error(ctx, "orchestrator: persist run failed", "runId", run.ID, "error", err)
	}
}

func (o *Orchestrator) persistAborted(ctx context.Context, runID string, start time.Time, seqFrom, seqTo int64, cause error) (storyteller.AgentRun, error) {
	run := storyteller.AgentRun{
		ID:        runID,
		RoomID:    o.roomID,
		AgentName: "orchestrator",
		SeqFrom:   seqFrom,
		SeqTo:     seqTo,
		Status:    storyteller.RunError,
		ErrorText: cause.Error(),
		Latency:   o.now().Sub(start),
		StartedAt: start,
	}
	o.persist(ctx, run)

	o.mu.Lock()
	o.lastRunID = run.ID
	o.runCount++
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RunDuration.WithLabelValues(string(run.Status)).Observe(run.Latency.Seconds())
		o.metrics.RunCounter.WithLabelValues(string(run.Status)).Inc()
	}
	return run, cause
}
