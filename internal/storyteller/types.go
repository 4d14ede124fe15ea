// Package storyteller holds the shared wire shapes and domain records that
// flow between the engine, the orchestrator, and every sub-agent: events,
// command envelopes, plans, runs, and memory records.
package storyteller

import (
	"encoding/json"
	"time"
)

// Phase mirrors the engine's authoritative game phase.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseFirstNight Phase = "first_night"
	PhaseDay        Phase = "day"
	PhaseNomination Phase = "nomination"
	PhaseNight      Phase = "night"
	PhaseEnded      Phase = "ended"
)

// Event is an append-only, per-room-ordered observation from the engine.
type Event struct {
	RoomID      string          `json:"roomId"`
	Seq         int64           `json:"seq"`
	EventID     string          `json:"eventId"`
	Type        string          `json:"type"`
	ActorUserID string          `json:"actorUserId"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Known event type tags. Not exhaustive — the engine may emit others.
const (
	EventPhaseFirstNight    = "phase.first_night"
	EventPhaseDay           = "phase.day"
	EventPhaseNight         = "phase.night"
	EventNominationCreated  = "nomination.created"
	EventVoteCast           = "vote.cast"
	EventExecutionResolved  = "execution.resolved"
	EventPublicChat         = "public.chat"
	EventWhisperSent        = "whisper.sent"
	EventGameStarted        = "game.started"
	EventGameEnded          = "game.ended"
	EventAbilityUsed        = "ability.used"
	EventDispute            = "dispute"
	EventRuleQuestion       = "rule_question"
	EventPlayerJoined       = "player.joined"
	EventPlayerLeft         = "player.left"
	EventSeatClaimed        = "seat.claimed"
	EventRoomSettingsChange = "room.settings.changed"
)

// actorAutoDM is the actor id the agent stamps on every command it emits.
const actorAutoDM = "autodm"

// CommandEnvelope is an intent sent back to the engine. IdempotencyKey
// equals CommandID for every command the agent emits, guaranteeing
// at-most-once effect even under duplicate dispatch.
type CommandEnvelope struct {
	CommandID      string          `json:"commandId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	RoomID         string          `json:"roomId"`
	Type           string          `json:"type"`
	ActorUserID    string          `json:"actorUserId"`
	Payload        json.RawMessage `json:"payload"`
}

// Command type tags shipped by the canonical tool set.
const (
	CommandPublicChat    = "public_chat"
	CommandWhisper       = "whisper"
	CommandAdvancePhase  = "advance_phase"
	CommandWriteEvent    = "write_event"
	CommandToggleVoting  = "toggle_voting"
	CommandRequestInput  = "request_player_confirmation"
	CommandRequestAction = "request_player_action"
)

// NewCommandEnvelope builds a command with a fresh id and matching
// idempotency key, stamped with the autodm actor.
func NewCommandEnvelope(newID func() string, roomID, cmdType string, payload json.RawMessage) CommandEnvelope {
	id := newID()
	return CommandEnvelope{
		CommandID:      id,
		IdempotencyKey: id,
		RoomID:         roomID,
		Type:           cmdType,
		ActorUserID:    actorAutoDM,
		Payload:        payload,
	}
}

// PlayerState is one seat's view within a GameState snapshot.
type PlayerState struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Seat           int    `json:"seat"`
	Role           string `json:"role,omitempty"`
	Alive          bool   `json:"alive"`
	VoteUsed       bool   `json:"voteUsed"`
	ReminderTokens []string `json:"reminderTokens,omitempty"`
}

// NominationState describes an in-flight nomination.
type NominationState struct {
	Nominator string `json:"nominator"`
	Nominee   string `json:"nominee"`
	VotesFor  int    `json:"votesFor"`
	Threshold int    `json:"threshold"`
}

// GameState is the borrowed, read-only projection of the engine's
// authoritative state, as supplied via the state-getter callback.
type GameState struct {
	Phase       Phase              `json:"phase"`
	Day         int                `json:"day"`
	Players     []PlayerState      `json:"players"`
	Nomination  *NominationState   `json:"nomination,omitempty"`
	LastSeq     int64              `json:"lastSeq"`
}

// AliveNonDMPlayers returns the seats an action such as
// request_player_confirmation may target.
func (g GameState) AliveNonDMPlayers() []PlayerState {
	out := make([]PlayerState, 0, len(g.Players))
	for _, p := range g.Players {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// Action is one planned tool invocation.
type Action struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Args       json.RawMessage `json:"args"`
	Priority   int             `json:"priority"`
	Timeout    time.Duration   `json:"timeout,omitempty"`
	MaxRetries int             `json:"maxRetries,omitempty"`
}

// Plan is the merged output of one orchestrator run, ready for Execute.
type Plan struct {
	ID         string   `json:"id"`
	RoomID     string   `json:"roomId"`
	Actions    []Action `json:"actions"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

// ActionResult records the outcome of executing one Action.
type ActionResult struct {
	ActionID  string        `json:"actionId"`
	Success   bool          `json:"success"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ToolCallAudit is a per-tool-invocation forensic record.
type ToolCallAudit struct {
	ToolName string          `json:"toolName"`
	Args     json.RawMessage `json:"args"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// RunStatus is the lifecycle state of an AgentRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
)

// AgentRun is one orchestrator-loop iteration record.
type AgentRun struct {
	ID          string          `json:"id"`
	RoomID      string          `json:"roomId"`
	AgentName   string          `json:"agentName"`
	SeqFrom     int64           `json:"seqFrom"`
	SeqTo       int64           `json:"seqTo"`
	InputDigest string          `json:"inputDigest"`
	OutputDigest string         `json:"outputDigest"`
	PlanJSON    json.RawMessage `json:"planJson,omitempty"`
	Audits      []ToolCallAudit `json:"audits,omitempty"`
	Status      RunStatus       `json:"status"`
	Latency     time.Duration   `json:"latency"`
	ErrorText   string          `json:"errorText,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
}

// MemoryKind classifies a MemoryEntry.
type MemoryKind string

const (
	MemoryKindRule    MemoryKind = "rule"
	MemoryKindSummary MemoryKind = "summary"
	MemoryKindProfile MemoryKind = "profile"
	MemoryKindEvent   MemoryKind = "event"
)

// MemoryEntry is one retrievable memory record.
type MemoryEntry struct {
	ID        string         `json:"id"`
	Kind      MemoryKind     `json:"kind"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Score     float64        `json:"score,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Playstyle tags PlayerModeler derives.
const (
	PlaystyleAggressive = "aggressive"
	PlaystyleTalkative   = "talkative"
	PlaystyleQuiet       = "quiet"
	PlaystyleBalanced    = "balanced"
)

// PlayerModel is a per-user behavioral profile.
type PlayerModel struct {
	UserID            string    `json:"userId"`
	Playstyle         string    `json:"playstyle"`
	TrustScore        float64   `json:"trustScore"`
	DeceptionScore    float64   `json:"deceptionScore"`
	ParticipationScore float64  `json:"participationScore"`
	VotingPatternTags []string  `json:"votingPatternTags,omitempty"`
	LastUpdated       time.Time `json:"lastUpdated"`
}
