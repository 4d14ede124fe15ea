package orchestrator

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/clocktower/storytellerdm/internal/observability"
)

// roomLister enumerates the rooms a maintenance pass should sweep over.
type roomLister func() []string

// rulesReindexer re-chunks and re-embeds the rules corpus. Grounded on
// *memory.Manager.IngestRules; kept as a narrow function type so
// maintenance doesn't need to know about memory.RuleDocument's package.
type rulesReindexer func(ctx context.Context) error

// compactor sweeps one room's short-term memory; the run command wires
// *memory.Manager.Compact, which re-embeds entries stored without an
// embedding and copies the room's whole short-term window into long-term
// storage. It does not remove entries from the ring.
type compactor func(ctx context.Context, roomID string) error

// MaintenanceJob runs a nightly rules reindex and short-term memory
// compaction sweep on a cron.Cron schedule, independent of any room's
// per-tick control loop.
type MaintenanceJob struct {
	cron    *cron.Cron
	rooms   roomLister
	reindex rulesReindexer
	compact compactor
	log     *observability.Logger
}

// NewMaintenanceJob builds a MaintenanceJob. schedule is a standard 5-field
// cron expression (e.g. "0 3 * * *" for 3am daily).
func NewMaintenanceJob(schedule string, rooms roomLister, reindex rulesReindexer, compact compactor, log *observability.Logger) (*MaintenanceJob, error) {
	if log == nil {
		log = observability.NewLogger(observability.LogConfig{})
	}
	c := cron.New()
	job := &MaintenanceJob{cron: c, rooms: rooms, reindex: reindex, compact: compact, log: log}

	if _, err := c.AddFunc(schedule, job.run); err != nil {
		return nil, err
	}
	return job, nil
}

// Start begins the cron scheduler on a background goroutine.
func (j *MaintenanceJob) Start() { j.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight run to finish.
func (j *MaintenanceJob) Stop() { <-j.cron.Stop().Done() }

func (j *MaintenanceJob) run() {
	ctx := context.Background()

	if j.reindex != nil {
		if err := j.reindex(ctx); err != nil {
			j.log.Error(ctx, "maintenance: rules reindex failed", "error", err)
		}
	}

	if j.compact != nil && j.rooms != nil {
		for _, roomID := range j.rooms() {
			if err := j.compact(ctx, roomID); err != nil {
				j.log.Error(ctx, "maintenance: compaction failed", "roomId", roomID, "error", err)
			}
		}
	}
}
