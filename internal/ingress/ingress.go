// Package ingress is the engine-facing boundary: it converts raw engine
// events into the agent's internal shape, decides whether to process them
// inline or hand them to a worker queue, grounds a response in rule
// context, and emits at most one outbound command per event — with a
// deterministic fallback whenever the model is slow or unreachable.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/clocktower/storytellerdm/internal/mcp"
	"github.com/clocktower/storytellerdm/internal/observability"
	"github.com/clocktower/storytellerdm/internal/storyteller"
)

func attrString(key, value string) attribute.KeyValue { return attribute.String(key, value) }

// ruleContextTopK and ruleContextSnippetChars bound the rule-RAG injection
// so a slow retriever or an oversized chunk never dominates the
// description text a sub-agent eventually reads.
const (
	ruleContextTopK         = 2
	ruleContextSnippetChars = 180
	ruleContextDeadline     = 1500 * time.Millisecond
)

// defaultEventTimeout bounds one event's end-to-end processing time.
const defaultEventTimeout = 8 * time.Second

// ignoredEventTypes never reach the responder; they carry no narration
// obligation.
var ignoredEventTypes = map[string]bool{
	storyteller.EventPlayerJoined:       true,
	storyteller.EventPlayerLeft:         true,
	storyteller.EventSeatClaimed:        true,
	storyteller.EventRoomSettingsChange: true,
}

// actorAutoDM must match storyteller's own stamp so loop-prevention can
// compare against it without importing an unexported constant.
const actorAutoDM = "autodm"

// defaultMessages are the deterministic fallback lines for the event types
// that need guaranteed user-visible liveness. Every other event type gets
// no fallback message — silence is an acceptable degrade for anything
// that isn't a major phase or nomination beat.
var defaultMessages = map[string]string{
	storyteller.EventPhaseDay:          "☀️ 天亮了，开始讨论并寻找隐藏的邪恶吧。",
	storyteller.EventPhaseNight:        "🌙 夜幕降临，请等待夜晚行动结算。",
	storyteller.EventNominationCreated: "📣 提名已发起，请进行陈述与投票。",
	storyteller.EventGameStarted:       "🎲 游戏开始，愿好运站在你这边。",
	storyteller.EventGameEnded:         "🏁 对局结束，感谢各位参与。",
}

func defaultMessageForEvent(eventType string) string {
	return defaultMessages[eventType]
}

// internalEvent is the normalized shape processing works against, after
// converting the engine's raw event and (optionally) injecting rule
// context into Description.
type internalEvent struct {
	Type        string
	Description string
	PlayerID    string
	Data        map[string]string
}

// ProcessResult is what a Responder decides for one event: whether to
// speak, and if so, what.
type ProcessResult struct {
	ShouldSpeak bool
	Message     string
}

// Responder turns a normalized event into a decision to speak or not.
// Grounded in the agent's own model-backed judgment; the default
// implementation in responder.go calls the router directly.
type Responder interface {
	Respond(ctx context.Context, evt internalEvent) (ProcessResult, error)
}

// Deps bundles every collaborator the ingress boundary needs.
type Deps struct {
	Enabled      func() bool // nil means always enabled
	Responder    Responder
	Retriever    storyteller.Retriever // optional
	Queue        storyteller.TaskQueue // optional
	Dispatcher   storyteller.CommandDispatcher
	Registry     *mcp.Registry // optional; preferred path for send_public_message
	NewID        func() string
	EventTimeout time.Duration
	Log          *observability.Logger
	Metrics      *observability.Metrics
	Tracer       *observability.Tracer
}

// Ingress is the OnEvent entry point plus the queued re-entry point a
// worker calls after dequeuing an AsyncEventTask.
type Ingress struct {
	enabled      func() bool
	responder    Responder
	retriever    storyteller.Retriever
	queue        storyteller.TaskQueue
	dispatcher   storyteller.CommandDispatcher
	registry     *mcp.Registry
	newID        func() string
	eventTimeout time.Duration
	log          *observability.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
}

// New builds an Ingress from deps.
func New(deps Deps) *Ingress {
	timeout := deps.EventTimeout
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}
	log := deps.Log
	if log == nil {
		log = observability.NewLogger(observability.LogConfig{})
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "storytellerdm"})
	}
	return &Ingress{
		enabled:      deps.Enabled,
		responder:    deps.Responder,
		retriever:    deps.Retriever,
		queue:        deps.Queue,
		dispatcher:   deps.Dispatcher,
		registry:     deps.Registry,
		newID:        deps.NewID,
		eventTimeout: timeout,
		log:          log,
		metrics:      deps.Metrics,
		tracer:       tracer,
	}
}

// OnEvent is the external entry point the engine invokes once per event,
// concurrently and safely re-entrant. It never surfaces an error to the
// caller: every failure mode degrades to a log line and, for a known
// subset of event types, a deterministic fallback message.
func (g *Ingress) OnEvent(ctx context.Context, event storyteller.RawEvent, state storyteller.EngineState) {
	if g.enabled != nil && !g.enabled() {
		return
	}
	if event.ActorUserID == actorAutoDM && (event.Type == storyteller.EventPublicChat || event.Type == storyteller.EventWhisperSent) {
		return // loop-prevention: never react to our own speech
	}
	if ignoredEventTypes[event.Type] {
		return
	}

	ctx, span := g.tracer.Start(ctx, "ingress.on_event",
		attrString("room_id", event.RoomID),
		attrString("event_type", event.Type),
	)
	defer span.End()

	// The engine snapshot is structural reference only; a malformed or
	// nil snapshot is a StateMismatch — log and keep processing the event.
	if state == nil {
		g.log.Warn(ctx, "ingress: engine state snapshot unavailable, proceeding without it",
			"roomId", event.RoomID, "eventType", event.Type)
	}

	task := storyteller.AsyncEventTask{Type: event.Type, RoomID: event.RoomID, Event: toEvent(event)}

	if g.queue != nil {
		err := g.queue.Publish(ctx, task)
		if err == nil {
			return
		}
		g.log.Warn(ctx, "ingress: queue publish failed, falling back to inline processing",
			"roomId", event.RoomID, "error", err)
	}

	g.ProcessQueuedEvent(ctx, task)
}

// ProcessQueuedEvent is the re-entry point a worker calls after dequeuing
// an AsyncEventTask, and the inline fallback path OnEvent uses directly
// when no queue is configured or publishing fails.
func (g *Ingress) ProcessQueuedEvent(ctx context.Context, task storyteller.AsyncEventTask) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.eventTimeout)
	defer cancel()

	evt := normalize(task.Event)
	evt.Description = g.injectRuleContext(ctx, evt)

	outcome := "ok"
	result, err := g.respond(ctx, evt)
	if err != nil {
		outcome = "fallback"
		g.log.Warn(ctx, "ingress: event processing failed, using default message",
			"roomId", task.RoomID, "eventType", task.Type, "error", err)
		if msg := defaultMessageForEvent(task.Type); msg != "" {
			result = ProcessResult{ShouldSpeak: true, Message: msg}
		} else {
			result = ProcessResult{}
		}
	}

	if g.metrics != nil {
		g.metrics.EventsProcessed.WithLabelValues(task.Type, outcome).Inc()
		g.metrics.EventDuration.WithLabelValues(task.Type).Observe(time.Since(start).Seconds())
	}

	if result.ShouldSpeak && strings.TrimSpace(result.Message) != "" {
		g.speak(ctx, task.RoomID, result.Message)
	}
}

func (g *Ingress) respond(ctx context.Context, evt internalEvent) (ProcessResult, error) {
	if g.responder == nil {
		return ProcessResult{}, fmt.Errorf("ingress: no responder configured")
	}
	return g.responder.Respond(ctx, evt)
}

// speak emits the message via the registry's send_public_message tool
// when available, falling back to a direct public_chat CommandEnvelope so
// a room with no registered tools still narrates.
func (g *Ingress) speak(ctx context.Context, roomID, message string) {
	if g.registry != nil {
		args, _ := json.Marshal(map[string]string{"message": message, "from": "storyteller"})
		result := g.registry.Invoke(mcp.HandlerContext{
			Ctx:        ctx,
			RoomID:     roomID,
			Dispatcher: g.dispatcher,
			NewID:      g.newID,
		}, mcp.RegToolCall{ID: g.newID(), Name: "send_public_message", Params: args, Timestamp: time.Now()})
		if result.Success {
			return
		}
		g.log.Warn(ctx, "ingress: send_public_message tool failed, falling back to direct dispatch",
			"roomId", roomID, "error", result.Error)
	}

	if g.dispatcher == nil {
		g.log.Error(ctx, "ingress: no dispatcher configured, dropping message", "roomId", roomID)
		return
	}
	payload, _ := json.Marshal(map[string]string{"message": message, "from": "storyteller"})
	cmd := storyteller.NewCommandEnvelope(g.newID, roomID, storyteller.CommandPublicChat, payload)
	if err := g.dispatcher.DispatchAsync(ctx, cmd); err != nil {
		g.log.Error(ctx, "ingress: direct dispatch failed", "roomId", roomID, "error", err)
	}
}

// injectRuleContext builds a short query from the event's type and phase
// kind, retrieves up to ruleContextTopK snippets under a tight deadline,
// and appends them to the description. A retriever failure or deadline
// miss yields no injection — silent, per the timeout policy.
func (g *Ingress) injectRuleContext(ctx context.Context, evt internalEvent) string {
	if g.retriever == nil {
		return evt.Description
	}
	query := ruleQuery(evt)
	if query == "" {
		return evt.Description
	}

	ctx, cancel := context.WithTimeout(ctx, ruleContextDeadline)
	defer cancel()

	chunks, err := g.retriever.Retrieve(ctx, query, ruleContextTopK)
	if err != nil || len(chunks) == 0 {
		return evt.Description
	}

	var snippets []string
	for _, c := range chunks {
		text := strings.TrimSpace(c.Content)
		if len(text) > ruleContextSnippetChars {
			text = text[:ruleContextSnippetChars]
		}
		if text != "" {
			snippets = append(snippets, text)
		}
	}
	if len(snippets) == 0 {
		return evt.Description
	}
	if evt.Data == nil {
		evt.Data = map[string]string{}
	}
	ruleContext := strings.Join(snippets, " | ")
	evt.Data["rule_context"] = ruleContext
	return evt.Description + "\n" + ruleContext
}

func ruleQuery(evt internalEvent) string {
	phaseKind := evt.Data["phase_kind"]
	switch {
	case evt.Type == "" && phaseKind == "":
		return ""
	case phaseKind != "":
		return evt.Type + " " + phaseKind
	default:
		return evt.Type
	}
}

func toEvent(raw storyteller.RawEvent) storyteller.Event {
	return storyteller.Event{
		RoomID:      raw.RoomID,
		Seq:         raw.Seq,
		EventID:     raw.EventID,
		Type:        raw.Type,
		ActorUserID: raw.ActorUserID,
		Payload:     raw.Payload,
		Timestamp:   time.Now(),
	}
}
