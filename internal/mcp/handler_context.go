package mcp

import (
	"context"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

// HandlerContext is the bundle every tool handler receives: a cancellable
// context, the room it acts on, the dispatcher it emits commands through,
// and the state-getter it may read engine state via.
type HandlerContext struct {
	Ctx        context.Context
	RoomID     string
	Dispatcher storyteller.CommandDispatcher
	State      storyteller.StateGetter
	NewID      func() string
	Events     func(ctx context.Context, roomID string, sinceSeq int64, limit int) ([]storyteller.Event, error)
}

// Context returns Ctx, for handlers that want to bound their own sub-calls
// without reaching into the field directly.
func (h HandlerContext) Context() context.Context { return h.Ctx }
