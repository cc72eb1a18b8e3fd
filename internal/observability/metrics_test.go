package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordSyncRecordCountsConflictsSeparately(t *testing.T) {
	records := SyncRecordsCollector()
	conflicts := SyncConflictsCollector()

	beforeApplied := testutil.ToFloat64(records.WithLabelValues("workout_plan", BranchApplied))
	beforeConflict := testutil.ToFloat64(records.WithLabelValues("workout_plan", BranchConflict))
	beforeKind := testutil.ToFloat64(conflicts.WithLabelValues("workout_plan"))

	RecordSyncRecord("workout_plan", BranchApplied)
	RecordSyncRecord("workout_plan", BranchConflict)
	RecordSyncRecord("workout_plan", BranchConflict)

	require.Equal(t, beforeApplied+1, testutil.ToFloat64(records.WithLabelValues("workout_plan", BranchApplied)))
	require.Equal(t, beforeConflict+2, testutil.ToFloat64(records.WithLabelValues("workout_plan", BranchConflict)))
	require.Equal(t, beforeKind+2, testutil.ToFloat64(conflicts.WithLabelValues("workout_plan")))
}

func TestTimestampGaugesIgnoreZeroTime(t *testing.T) {
	ts := time.Date(2025, time.June, 2, 9, 30, 0, 0, time.UTC)

	RecordServerTime(ts)
	RecordServerTime(time.Time{})
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(syncWatermarkGauge))

	RecordSyncCommitted(ts)
	RecordSyncCommitted(time.Time{})
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(syncCommitGauge))
}
