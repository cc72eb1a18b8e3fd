package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of one DLQ manager pass over an entry.
const (
	dlqOutcomeRequeued    = "requeued"
	dlqOutcomeRetry       = "retry_scheduled"
	dlqOutcomeQuarantined = "quarantined"
)

var (
	dlqEntriesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "dlq",
		Name:      "entries_handled_total",
		Help:      "DLQ entries handled by the manager, by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	dlqStateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "titan_sync",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Current DLQ entries by state (queued or quarantined).",
	}, []string{"state"})

	dlqOldestQueuedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "titan_sync",
		Subsystem: "dlq",
		Name:      "oldest_queued_age_seconds",
		Help:      "Age of the oldest entry still waiting for replay; 0 when the queue is empty.",
	})
)

func init() {
	prometheus.MustRegister(dlqEntriesCounter, dlqStateGauge, dlqOldestQueuedGauge)
}

func recordDLQOutcome(entry dlqEntry, outcome string) {
	dlqEntriesCounter.WithLabelValues(entry.Topic, entry.EventType, outcome).Inc()
}

// updateBacklogGauges refreshes the state gauges. Errors leave the previous values in place.
func updateBacklogGauges(ctx context.Context, pool *pgxpool.Pool) {
	var queued, quarantined int
	var oldestSeconds float64
	row := pool.QueryRow(ctx, `SELECT
            COUNT(*) FILTER (WHERE quarantined_at IS NULL),
            COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL),
            COALESCE(EXTRACT(EPOCH FROM NOW() - MIN(created_at) FILTER (WHERE quarantined_at IS NULL)), 0)::float8
          FROM outbox_dlq`)
	if err := row.Scan(&queued, &quarantined, &oldestSeconds); err != nil {
		return
	}
	dlqStateGauge.WithLabelValues("queued").Set(float64(queued))
	dlqStateGauge.WithLabelValues("quarantined").Set(float64(quarantined))
	dlqOldestQueuedGauge.Set(oldestSeconds)
}
