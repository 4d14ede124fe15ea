package subagents

import (
	"context"
	"encoding/json"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

// playerModelStore is the narrow persistence seam PlayerModeler needs.
type playerModelStore interface {
	SavePlayerModel(ctx context.Context, roomID string, model storyteller.PlayerModel) error
}

type actorCounters struct {
	messages    int
	nominations int
	votesTotal  int
	votesYes    int
}

// PlayerModeler aggregates per-actor behavior counters across recent
// events into a playstyle tag and voting-pattern tags, persisting one
// PlayerModel per actor seen this run.
type PlayerModeler struct {
	store playerModelStore
}

// NewPlayerModeler builds a PlayerModeler sub-agent.
func NewPlayerModeler(store playerModelStore) *PlayerModeler {
	return &PlayerModeler{store: store}
}

func (p *PlayerModeler) Name() string { return "player_modeler" }

func (p *PlayerModeler) Description() string {
	return "Derives per-player playstyle and voting-pattern tags from recent activity."
}

func (p *PlayerModeler) Execute(ctx context.Context, agentCtx storyteller.AgentContext) (*storyteller.AgentOutput, error) {
	counters := aggregateActorCounters(agentCtx.RecentEvents)
	if len(counters) == 0 {
		return &storyteller.AgentOutput{Confidence: 1.0}, nil
	}

	for actor, c := range counters {
		model := storyteller.PlayerModel{
			UserID:             actor,
			Playstyle:          playstyleFor(c),
			ParticipationScore: participationScore(c),
			VotingPatternTags:  votingPatternTags(c),
		}
		if p.store != nil {
			if err := p.store.SavePlayerModel(ctx, agentCtx.RoomID, model); err != nil {
				return nil, err
			}
		}
	}
	return &storyteller.AgentOutput{
		Message:    "updated player models",
		Confidence: 0.6,
	}, nil
}

func aggregateActorCounters(events []storyteller.Event) map[string]actorCounters {
	counters := make(map[string]actorCounters)
	for _, e := range events {
		if e.ActorUserID == "" {
			continue
		}
		c := counters[e.ActorUserID]
		switch e.Type {
		case storyteller.EventPublicChat:
			c.messages++
		case storyteller.EventNominationCreated:
			c.nominations++
		case storyteller.EventVoteCast:
			c.votesTotal++
			if voteCastIsYes(e) {
				c.votesYes++
			}
		}
		counters[e.ActorUserID] = c
	}
	return counters
}

func voteCastIsYes(e storyteller.Event) bool {
	var payload struct {
		Vote bool `json:"vote"`
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return false
	}
	return payload.Vote
}

// playstyleFor derives a tag from raw activity volume: many nominations
// plus votes reads as aggressive, many messages with few votes as
// talkative, almost no activity as quiet, anything else as balanced.
func playstyleFor(c actorCounters) string {
	total := c.messages + c.nominations + c.votesTotal
	switch {
	case total == 0:
		return storyteller.PlaystyleQuiet
	case c.nominations >= 2 || c.votesTotal >= 3:
		return storyteller.PlaystyleAggressive
	case c.messages >= 5:
		return storyteller.PlaystyleTalkative
	case total <= 2:
		return storyteller.PlaystyleQuiet
	default:
		return storyteller.PlaystyleBalanced
	}
}

func participationScore(c actorCounters) float64 {
	total := c.messages + c.nominations + c.votesTotal
	if total == 0 {
		return 0
	}
	score := float64(total) / 10.0
	if score > 1 {
		score = 1
	}
	return score
}

func votingPatternTags(c actorCounters) []string {
	if c.votesTotal == 0 {
		return nil
	}
	var tags []string
	if c.votesYes == c.votesTotal {
		tags = append(tags, "always_yes")
	} else if c.votesYes == 0 {
		tags = append(tags, "always_no")
	} else if float64(c.votesYes)/float64(c.votesTotal) > 0.5 {
		tags = append(tags, "lenient")
	} else {
		tags = append(tags, "strict")
	}
	return tags
}

var _ storyteller.SubAgent = (*PlayerModeler)(nil)
