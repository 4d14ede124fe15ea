package storyteller

import "context"

// MemoryContext is the retrieval bundle BuildContext assembles for each run.
type MemoryContext struct {
	ShortTerm    []MemoryEntry           `json:"shortTerm,omitempty"`
	LongTerm     []MemoryEntry           `json:"longTerm,omitempty"`
	PlayerModels map[string]PlayerModel  `json:"playerModels,omitempty"`
	GameSummary  string                  `json:"gameSummary,omitempty"`
}

// PendingInput describes a player the moderator is still waiting on.
type PendingInput struct {
	UserID string `json:"userId"`
	Kind   string `json:"kind"`
}

// AgentContext is the read-only bundle passed to every sub-agent's Execute.
type AgentContext struct {
	RunID         string
	RoomID        string
	Phase         Phase
	RecentEvents  []Event
	PendingInputs []PendingInput
	TimerDeadline map[string]int64 // timer name -> unix seconds deadline
	Memory        MemoryContext
	State         GameState
}

// AgentOutput is what a sub-agent contributes toward the merged Plan.
type AgentOutput struct {
	Actions    []Action
	Message    string
	Confidence float64
}

// SubAgent is the shared capability set all five specialists implement.
// Sealed by convention to this small set of variants — no deep hierarchy.
type SubAgent interface {
	Name() string
	Description() string
	Execute(ctx context.Context, agentCtx AgentContext) (*AgentOutput, error)
}
