package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Record branches taken by the sync engine.
const (
	BranchCreated  = "created"
	BranchApplied  = "applied"
	BranchConflict = "conflict"
	BranchSkipped  = "skipped"
)

var (
	syncRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "engine",
		Name:      "requests_total",
		Help:      "Sync requests processed by outcome.",
	}, []string{"outcome"})
	syncRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "engine",
		Name:      "records_total",
		Help:      "Client records reconciled by entity kind and merge branch.",
	}, []string{"kind", "branch"})
	syncConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "engine",
		Name:      "conflicts_total",
		Help:      "Server-wins conflicts reported to clients by entity kind.",
	}, []string{"kind"})
	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "titan_sync",
		Subsystem: "engine",
		Name:      "duration_seconds",
		Help:      "Wall time of a full sync request including the re-read.",
		Buckets:   prometheus.DefBuckets,
	})
	syncCommitGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "titan_sync",
		Subsystem: "persistence",
		Name:      "last_commit_timestamp_seconds",
		Help:      "Unix timestamp of the most recent sync transaction committed to Postgres.",
	})
	syncWatermarkGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "titan_sync",
		Subsystem: "engine",
		Name:      "last_server_time_timestamp_seconds",
		Help:      "Unix timestamp of the most recent server_time watermark handed to a client.",
	})
)

func init() {
	prometheus.MustRegister(syncRequests, syncRecords, syncConflicts, syncDuration, syncCommitGauge, syncWatermarkGauge)
}

// RecordSyncRequest counts a finished sync request and observes its duration.
func RecordSyncRequest(outcome string, elapsed time.Duration) {
	syncRequests.WithLabelValues(outcome).Inc()
	syncDuration.Observe(elapsed.Seconds())
}

// RecordSyncRecord counts one reconciled client record.
func RecordSyncRecord(kind, branch string) {
	syncRecords.WithLabelValues(kind, branch).Inc()
	if branch == BranchConflict {
		syncConflicts.WithLabelValues(kind).Inc()
	}
}

// RecordSyncCommitted updates the persistence watermark gauge.
func RecordSyncCommitted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	syncCommitGauge.Set(float64(ts.Unix()))
}

// RecordServerTime updates the gauge tracking the last watermark returned to a client.
func RecordServerTime(ts time.Time) {
	if ts.IsZero() {
		return
	}
	syncWatermarkGauge.Set(float64(ts.Unix()))
}

// SyncRecordsCollector exposes the record counter for tests.
func SyncRecordsCollector() *prometheus.CounterVec { return syncRecords }

// SyncConflictsCollector exposes the conflict counter for tests.
func SyncConflictsCollector() *prometheus.CounterVec { return syncConflicts }
