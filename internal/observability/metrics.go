package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the orchestrator, ingress, and
// sub-agents report against. Registered once at process startup and shared
// across every room's control loop.
type Metrics struct {
	// RunDuration measures one orchestrator-loop iteration end to end.
	// Labels: outcome (completed|error)
	RunDuration *prometheus.HistogramVec

	// RunCounter counts orchestrator runs by outcome.
	RunCounter *prometheus.CounterVec

	// SubAgentDuration measures one sub-agent's Execute call.
	// Labels: agent, outcome (success|error)
	SubAgentDuration *prometheus.HistogramVec

	// SubAgentCounter counts sub-agent invocations by outcome.
	SubAgentCounter *prometheus.CounterVec

	// ActionDuration measures one Execute retry attempt against the tool
	// registry. Labels: tool, outcome (success|error)
	ActionDuration *prometheus.HistogramVec

	// ActionCounter counts action executions, including retries.
	ActionCounter *prometheus.CounterVec

	// EventsProcessed counts OnEvent calls by event type and outcome.
	EventsProcessed *prometheus.CounterVec

	// EventDuration measures one OnEvent call end to end.
	EventDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns the collector set. Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storytellerdm_run_duration_seconds",
				Help:    "Duration of one orchestrator control-loop run",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		RunCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storytellerdm_runs_total",
				Help: "Total orchestrator runs by outcome",
			},
			[]string{"outcome"},
		),
		SubAgentDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storytellerdm_subagent_duration_seconds",
				Help:    "Duration of one sub-agent Execute call",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"agent", "outcome"},
		),
		SubAgentCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storytellerdm_subagent_invocations_total",
				Help: "Total sub-agent invocations by agent and outcome",
			},
			[]string{"agent", "outcome"},
		),
		ActionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storytellerdm_action_duration_seconds",
				Help:    "Duration of one planned action execution attempt",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool", "outcome"},
		),
		ActionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storytellerdm_actions_total",
				Help: "Total action execution attempts, including retries",
			},
			[]string{"tool", "outcome"},
		),
		EventsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storytellerdm_events_processed_total",
				Help: "Total ingress OnEvent calls by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		EventDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storytellerdm_event_duration_seconds",
				Help:    "Duration of one ingress OnEvent call",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 8},
			},
			[]string{"event_type"},
		),
	}
}
