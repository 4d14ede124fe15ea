package subagents

import (
	"context"
	"fmt"
	"time"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

const (
	timerVote  = "vote"
	timerDay   = "day"
	timerNight = "night"

	nominationPromptSilence = 30 * time.Second
)

// Moderator watches phase timers and pending player inputs, emitting the
// actions that keep the game moving: a nudge when discussion has gone
// silent, timer-driven phase transitions, and per-player night prompts.
type Moderator struct {
	newID func() string
	now   func() time.Time
}

// NewModerator builds a Moderator. now defaults to time.Now.
func NewModerator(newID func() string, now func() time.Time) *Moderator {
	if now == nil {
		now = time.Now
	}
	return &Moderator{newID: newID, now: now}
}

func (m *Moderator) Name() string { return "moderator" }

func (m *Moderator) Description() string {
	return "Advances phases on timer expiry and prompts for stalled discussion or pending night actions."
}

func (m *Moderator) Execute(ctx context.Context, agentCtx storyteller.AgentContext) (*storyteller.AgentOutput, error) {
	out := &storyteller.AgentOutput{Confidence: 1.0}
	now := m.now()

	if _, ok := timerExpired(agentCtx.TimerDeadline, timerVote, now); ok {
		action, err := buildAction(m.newID, ToolToggleVoting, map[string]any{
			"enabled": false,
			"reason":  "vote timer expired",
		}, 10)
		if err != nil {
			return nil, err
		}
		out.Actions = append(out.Actions, action)
	}

	if agentCtx.Phase == storyteller.PhaseDay && agentCtx.State.Nomination == nil {
		if since := now.Sub(lastEventAt(agentCtx.RecentEvents)); since > nominationPromptSilence {
			action, err := buildAction(m.newID, ToolSendPublicMessage, map[string]string{
				"message": "Discussion has gone quiet. Does anyone wish to nominate a player?",
				"from":    "storyteller",
			}, 5)
			if err != nil {
				return nil, err
			}
			out.Actions = append(out.Actions, action)
			out.Message = "prompted for a nomination after a silent discussion"
		}
	}

	if _, ok := timerExpired(agentCtx.TimerDeadline, timerDay, now); ok {
		action, err := buildAction(m.newID, ToolAdvancePhase, map[string]string{
			"phase":  string(storyteller.PhaseNight),
			"reason": "day timer expired",
		}, 20)
		if err != nil {
			return nil, err
		}
		out.Actions = append(out.Actions, action)
		out.Message = "advanced to night on day timer expiry"
	}

	if agentCtx.Phase == storyteller.PhaseNight {
		for _, pending := range agentCtx.PendingInputs {
			whisper, err := buildAction(m.newID, ToolSendPrivateMessage, map[string]string{
				"to_user_id": pending.UserID,
				"message":    fmt.Sprintf("It is your turn to act (%s).", pending.Kind),
				"from":       "storyteller",
			}, 8)
			if err != nil {
				return nil, err
			}
			ask, err := buildAction(m.newID, ToolRequestConfirmation, map[string]string{
				"user_id": pending.UserID,
				"prompt":  fmt.Sprintf("Choose a target for your %s ability.", pending.Kind),
			}, 8)
			if err != nil {
				return nil, err
			}
			out.Actions = append(out.Actions, whisper, ask)
		}
	}

	if _, ok := timerExpired(agentCtx.TimerDeadline, timerNight, now); ok {
		action, err := buildAction(m.newID, ToolAdvancePhase, map[string]string{
			"phase":  string(storyteller.PhaseDay),
			"reason": "night timer expired",
		}, 20)
		if err != nil {
			return nil, err
		}
		out.Actions = append(out.Actions, action)
		out.Message = "advanced to day on night timer expiry"
	}

	return out, nil
}

// timerExpired reports whether the named deadline exists and has passed.
func timerExpired(deadlines map[string]int64, name string, now time.Time) (time.Time, bool) {
	unix, ok := deadlines[name]
	if !ok {
		return time.Time{}, false
	}
	deadline := time.Unix(unix, 0)
	return deadline, !now.Before(deadline)
}

var _ storyteller.SubAgent = (*Moderator)(nil)
