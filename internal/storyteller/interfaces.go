package storyteller

import (
	"context"
	"encoding/json"
)

// CommandDispatcher delivers CommandEnvelopes to the engine.
type CommandDispatcher interface {
	DispatchAsync(ctx context.Context, cmd CommandEnvelope) error
}

// AsyncEventTask is published to the task queue for queued event processing.
type AsyncEventTask struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Event  Event  `json:"event"`
}

// TaskQueue is the optional broker collaborator used to offload event
// processing off the engine's calling goroutine.
type TaskQueue interface {
	Publish(ctx context.Context, task AsyncEventTask) error
}

// RetrievedChunk is one hit returned by a Retriever.
type RetrievedChunk struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Retriever grounds rule injections; an optional collaborator.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]RetrievedChunk, error)
}

// AgentRunStore is the append-only log of runs and tool-call audits.
type AgentRunStore interface {
	SaveRun(ctx context.Context, run AgentRun) error
	SaveToolCall(ctx context.Context, runID string, audit ToolCallAudit) error
	ListRuns(ctx context.Context, roomID string, limit int) ([]AgentRun, error)
}

// MemoryStore is the long-term persistence collaborator behind the Memory
// Manager's ring/rules-index layer.
type MemoryStore interface {
	SaveEntry(ctx context.Context, roomID string, entry MemoryEntry) error
	LoadEntries(ctx context.Context, roomID string, limit int) ([]MemoryEntry, error)
	SearchByEmbedding(ctx context.Context, roomID string, embedding []float32, topK int) ([]MemoryEntry, error)
	SaveGameSummary(ctx context.Context, roomID, summary string) error
	GetGameSummary(ctx context.Context, roomID string) (string, error)
	SavePlayerModel(ctx context.Context, roomID string, model PlayerModel) error
	GetPlayerModels(ctx context.Context, roomID string) (map[string]PlayerModel, error)
}

// Embedder computes a fixed-dimension embedding for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// EngineState is the translation boundary for the engine's opaque
// authoritative snapshot. The exact field mapping on the engine side is the
// collaborator's concern; the agent only ever reads through this interface.
type EngineState interface {
	Phase() Phase
	DayCount() int
	Players() []PlayerState
	NominationQueue() *NominationState
	LastSeq() int64
}

// StateGetter reads the engine's current room state on demand, as used by
// the get_room_state tool and by Sense.
type StateGetter func(ctx context.Context, roomID string) (EngineState, error)

// RawEvent is the engine-native shape delivered to OnEvent, carrying an
// opaque payload and the authoritative snapshot alongside it.
type RawEvent struct {
	RoomID      string
	Seq         int64
	EventID     string
	Type        string
	ActorUserID string
	Payload     json.RawMessage
}
