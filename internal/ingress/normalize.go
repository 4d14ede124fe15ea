package ingress

import (
	"encoding/json"
	"fmt"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

// phaseDescriptions carries the narration hook for each phase-transition
// event type, independent of the deterministic fallback lines in
// ingress.go — this is what a healthy Responder is told about the event,
// not what gets said when the Responder can't be reached.
var phaseDescriptions = map[string]string{
	storyteller.EventPhaseFirstNight: "the first night begins",
	storyteller.EventPhaseDay:        "day has broken",
	storyteller.EventPhaseNight:      "night has fallen",
}

// normalize converts one engine event into the internal {type,
// description, playerID, data} shape processing works against: phase
// subtypes get a narration hook, nomination/vote/execution events get a
// phase_kind classification tag, and the raw payload (if a JSON object)
// becomes a string-only data map.
func normalize(evt storyteller.Event) internalEvent {
	out := internalEvent{
		Type:     evt.Type,
		PlayerID: evt.ActorUserID,
		Data:     payloadToStringMap(evt.Payload),
	}

	switch evt.Type {
	case storyteller.EventPhaseFirstNight, storyteller.EventPhaseDay, storyteller.EventPhaseNight:
		out.Description = phaseDescriptions[evt.Type]
		setPhaseKind(out.Data, "phase_transition")
	case storyteller.EventNominationCreated:
		out.Description = "a nomination has been raised"
		setPhaseKind(out.Data, "nomination")
	case storyteller.EventVoteCast:
		out.Description = fmt.Sprintf("%s cast a vote", evt.ActorUserID)
		setPhaseKind(out.Data, "voting")
	case storyteller.EventExecutionResolved:
		out.Description = "an execution has been resolved"
		setPhaseKind(out.Data, "execution")
	case storyteller.EventGameStarted:
		out.Description = "the game has started"
	case storyteller.EventGameEnded:
		out.Description = "the game has ended"
	case storyteller.EventDispute:
		out.Description = "a player raised a dispute"
		setPhaseKind(out.Data, "dispute")
	case storyteller.EventRuleQuestion:
		out.Description = fmt.Sprintf("%s asked a rules question", evt.ActorUserID)
		setPhaseKind(out.Data, "rule_question")
	default:
		out.Description = evt.Type
	}

	return out
}

func setPhaseKind(data map[string]string, kind string) {
	if data == nil {
		return
	}
	if _, exists := data["phase_kind"]; !exists {
		data["phase_kind"] = kind
	}
}

// payloadToStringMap best-effort decodes a JSON object payload into a
// string-only map, per the write_event contract's "string-only data map
// after normalization." Non-object or malformed payloads yield an empty
// map rather than an error — ingress never fails an event over payload
// shape.
func payloadToStringMap(payload json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(payload) == 0 {
		return out
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return out
	}
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			if b, err := json.Marshal(val); err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}
