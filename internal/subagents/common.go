// Package subagents implements the five sub-agents the orchestrator
// consults each run: Moderator, Rules, Narrator, Summarizer, and
// PlayerModeler.
package subagents

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

// Action types name the canonical tool each action is executed through.
const (
	ToolSendPublicMessage   = "send_public_message"
	ToolSendPrivateMessage  = "send_private_message"
	ToolRequestConfirmation = "request_player_confirmation"
	ToolAdvancePhase        = "advance_phase"
	ToolToggleVoting        = "toggle_voting"
	ToolWriteEvent          = "write_event"
)

// buildAction marshals args and wraps it in an Action with a fresh id.
func buildAction(newID func() string, actionType string, args any, priority int) (storyteller.Action, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return storyteller.Action{}, fmt.Errorf("subagents: marshal args for %s: %w", actionType, err)
	}
	return storyteller.Action{
		ID:       newID(),
		Type:     actionType,
		Args:     raw,
		Priority: priority,
	}, nil
}

// lastEventAt returns the timestamp of the most recent event in events, or
// the zero time if events is empty.
func lastEventAt(events []storyteller.Event) time.Time {
	if len(events) == 0 {
		return time.Time{}
	}
	return events[len(events)-1].Timestamp
}

// containsEventType reports whether any event in events has one of types.
func containsEventType(events []storyteller.Event, types ...string) bool {
	want := make(map[string]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}
	for _, e := range events {
		if _, ok := want[e.Type]; ok {
			return true
		}
	}
	return false
}

// eventsOfType returns every event in events matching one of types, in
// original order.
func eventsOfType(events []storyteller.Event, types ...string) []storyteller.Event {
	want := make(map[string]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}
	var out []storyteller.Event
	for _, e := range events {
		if _, ok := want[e.Type]; ok {
			out = append(out, e)
		}
	}
	return out
}
