package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

func strParam(min, max int) ParamSchema {
	return ParamSchema{Type: ParamString, MinLength: &min, MaxLength: &max}
}

func enumParam(values ...string) ParamSchema {
	return ParamSchema{Type: ParamString, Enum: values}
}

// RegisterCanonicalTools registers the eight tools the core must ship:
// send_public_message, send_private_message, request_player_confirmation,
// advance_phase, toggle_voting, write_event, get_room_state,
// get_recent_events. Each handler's effect is to emit one or more
// CommandEnvelopes via the dispatcher and/or read state via the
// state-getter callback.
func RegisterCanonicalTools(r *Registry) error {
	tools := []struct {
		def     RegToolDefinition
		handler RegHandler
	}{
		{
			def: RegToolDefinition{
				Name:        "send_public_message",
				Description: "Speak to the whole room.",
				Category:    CategoryCommunication,
				Parameters: map[string]ParamSchema{
					"message": strParam(1, 4000),
					"from":    strParam(0, 120),
				},
				Required: []string{"message"},
			},
			handler: handlePublicMessage,
		},
		{
			def: RegToolDefinition{
				Name:        "send_private_message",
				Description: "Whisper to a single player.",
				Category:    CategoryCommunication,
				Parameters: map[string]ParamSchema{
					"to_user_id": strParam(1, 120),
					"message":    strParam(1, 4000),
					"from":       strParam(0, 120),
				},
				Required: []string{"to_user_id", "message"},
			},
			handler: handlePrivateMessage,
		},
		{
			def: RegToolDefinition{
				Name:        "request_player_confirmation",
				Description: "Ask a player to confirm or acknowledge a prompt.",
				Category:    CategoryModeration,
				Parameters: map[string]ParamSchema{
					"user_id": strParam(1, 120),
					"prompt":  strParam(1, 1000),
				},
				Required: []string{"user_id", "prompt"},
			},
			handler: handleRequestConfirmation,
		},
		{
			def: RegToolDefinition{
				Name:        "advance_phase",
				Description: "Advance the game to a new phase.",
				Category:    CategoryGameControl,
				Parameters: map[string]ParamSchema{
					"phase":  enumParam("day", "night", "nomination"),
					"reason": strParam(0, 500),
				},
				Required: []string{"phase"},
			},
			handler: handleAdvancePhase,
		},
		{
			def: RegToolDefinition{
				Name:        "toggle_voting",
				Description: "Open or close voting on the active nomination.",
				Category:    CategoryGameControl,
				Parameters: map[string]ParamSchema{
					"enabled": {Type: ParamBoolean},
					"reason":  strParam(0, 500),
				},
				Required: []string{"enabled"},
			},
			handler: handleToggleVoting,
		},
		{
			def: RegToolDefinition{
				Name:        "write_event",
				Description: "Record an arbitrary game event for audit/history.",
				Category:    CategoryInformation,
				Parameters: map[string]ParamSchema{
					"event_type": strParam(1, 120),
					"data": {
						Type: ParamObject,
					},
				},
				Required: []string{"event_type"},
			},
			handler: handleWriteEvent,
		},
		{
			def: RegToolDefinition{
				Name:        "get_room_state",
				Description: "Read the engine's current authoritative room state.",
				Category:    CategoryInformation,
				Parameters:  map[string]ParamSchema{},
			},
			handler: handleGetRoomState,
		},
		{
			def: RegToolDefinition{
				Name:        "get_recent_events",
				Description: "Read recent events for this room since a sequence number.",
				Category:    CategoryInformation,
				Parameters: map[string]ParamSchema{
					"since_seq": {Type: ParamInteger, Minimum: floatPtr(0)},
					"limit":     {Type: ParamInteger, Minimum: floatPtr(1), Maximum: floatPtr(500)},
				},
				Required: []string{"since_seq", "limit"},
			},
			handler: handleGetRecentEvents,
		},
	}

	for _, t := range tools {
		if err := r.Register(t.def, t.handler); err != nil {
			return fmt.Errorf("register %s: %w", t.def.Name, err)
		}
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }

type statusResult struct {
	Status    string `json:"status"`
	CommandID string `json:"commandId,omitempty"`
}

func dispatchCommand(hctx HandlerContext, cmdType string, payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if hctx.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher unconfigured")
	}
	cmd := storyteller.NewCommandEnvelope(hctx.NewID, hctx.RoomID, cmdType, raw)
	if err := hctx.Dispatcher.DispatchAsync(hctx.Ctx, cmd); err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", cmdType, err)
	}
	status := statusResult{Status: "dispatched", CommandID: cmd.CommandID}
	return json.Marshal(status)
}

func handlePublicMessage(hctx HandlerContext, params json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Message string `json:"message"`
		From    string `json:"from"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}
	if args.From == "" {
		args.From = "storyteller"
	}
	return dispatchCommand(hctx, storyteller.CommandPublicChat, map[string]string{
		"message": args.Message,
		"from":    args.From,
	})
}

func handlePrivateMessage(hctx HandlerContext, params json.RawMessage) (json.RawMessage, error) {
	var args struct {
		ToUserID string `json:"to_user_id"`
		Message  string `json:"message"`
		From     string `json:"from"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}
	if args.From == "" {
		args.From = "storyteller"
	}
	return dispatchCommand(hctx, storyteller.CommandWhisper, map[string]string{
		"to_user_id": args.ToUserID,
		"message":    args.Message,
		"from":       args.From,
	})
}

func handleRequestConfirmation(hctx HandlerContext, params json.RawMessage) (json.RawMessage, error) {
	var args struct {
		UserID string `json:"user_id"`
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}
	return dispatchCommand(hctx, storyteller.CommandRequestInput, map[string]string{
		"user_id": args.UserID,
		"prompt":  args.Prompt,
	})
}

func handleAdvancePhase(hctx HandlerContext, params json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Phase  string `json:"phase"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}
	// The wire contract with the engine uses "phase", never "next_phase".
	return dispatchCommand(hctx, storyteller.CommandAdvancePhase, map[string]string{
		"phase":  args.Phase,
		"reason": args.Reason,
	})
}

func handleToggleVoting(hctx HandlerContext, params json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Enabled bool   `json:"enabled"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}
	return dispatchCommand(hctx, storyteller.CommandToggleVoting, map[string]any{
		"enabled": args.Enabled,
		"reason":  args.Reason,
	})
}

func handleWriteEvent(hctx HandlerContext, params json.RawMessage) (json.RawMessage, error) {
	var args struct {
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}
	return dispatchCommand(hctx, storyteller.CommandWriteEvent, map[string]any{
		"event_type": args.EventType,
		"data":       normalizeToStrings(args.Data),
	})
}

// normalizeToStrings stringifies every non-string value to its JSON
// representation, matching the original ingress's normalizeEventData
// contract ("string-only data map after normalization").
func normalizeToStrings(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			out[k] = fmt.Sprintf("%v", v)
			continue
		}
		out[k] = string(b)
	}
	return out
}

func handleGetRoomState(hctx HandlerContext, _ json.RawMessage) (json.RawMessage, error) {
	if hctx.State == nil {
		return nil, fmt.Errorf("state getter unconfigured")
	}
	state, err := hctx.State(hctx.Ctx, hctx.RoomID)
	if err != nil {
		return nil, fmt.Errorf("get room state: %w", err)
	}
	snapshot := storyteller.GameState{
		Phase:      state.Phase(),
		Day:        state.DayCount(),
		Players:    state.Players(),
		Nomination: state.NominationQueue(),
		LastSeq:    state.LastSeq(),
	}
	return json.Marshal(snapshot)
}

func handleGetRecentEvents(hctx HandlerContext, params json.RawMessage) (json.RawMessage, error) {
	var args struct {
		SinceSeq int64 `json:"since_seq"`
		Limit    int   `json:"limit"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, err
	}
	if hctx.Events == nil {
		return nil, fmt.Errorf("events reader unconfigured")
	}
	events, err := hctx.Events(hctx.Ctx, hctx.RoomID, args.SinceSeq, args.Limit)
	if err != nil {
		return nil, fmt.Errorf("get recent events: %w", err)
	}
	return json.Marshal(events)
}
