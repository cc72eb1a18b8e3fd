//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/qiuhuiming/titan-track/database"
	"github.com/qiuhuiming/titan-track/internal/domain"
)

func TestStoreSyncRoundTrip(t *testing.T) {
	pool := database.SetupTestDB(t)
	ctx := context.Background()
	store := NewStore(pool)

	userID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	engine := domain.NewEngine(store, domain.WithClock(func() time.Time { return now }))

	batch, err := domain.DecodeBatch(
		[]json.RawMessage{json.RawMessage(`{"id":"` + userID + `-e1","name":"Squat","muscleGroup":"Legs","notes":"low bar"}`)},
		[]json.RawMessage{json.RawMessage(`{"id":"` + userID + `-p1","date":"2025-05-01","title":"Leg day","tags":["legs"],"exercises":[{"exercise_id":"e1"}]}`)},
		[]json.RawMessage{json.RawMessage(`{"id":"` + userID + `-w1","date":"2025-05-01T18:00:00Z","exercise_id":"e1","sets":[{"reps":5}]}`)},
	)
	require.NoError(t, err)

	result, err := engine.Sync(ctx, domain.Identity{UserID: userID, DeviceID: "phone"}, nil, batch)
	require.NoError(t, err)
	require.Len(t, result.Exercises, 1)
	require.Len(t, result.Plans, 1)
	require.Len(t, result.Entries, 1)

	ex := result.Exercises[0]
	require.Equal(t, userID, ex.UserID)
	require.Equal(t, domain.MuscleGroupLegs, ex.MuscleGroup)
	require.Equal(t, "low bar", *ex.Notes)
	require.Nil(t, ex.PersonalBest)
	require.True(t, now.Equal(ex.UpdatedAt))

	plan := result.Plans[0]
	require.Equal(t, "2025-05-01", plan.Date.Format(time.DateOnly))
	require.Equal(t, []string{"legs"}, plan.Tags)
	require.JSONEq(t, `[{"exercise_id":"e1"}]`, string(plan.Exercises))

	entry := result.Entries[0]
	require.JSONEq(t, `[{"reps":5}]`, string(entry.Sets))
	require.Nil(t, entry.PlanID)

	var outboxCount int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE user_id=$1 AND event_type='entity.changed'`, userID).Scan(&outboxCount)
	require.NoError(t, err)
	require.Equal(t, 3, outboxCount)
}

func TestStoreScopesByUser(t *testing.T) {
	pool := database.SetupTestDB(t)
	ctx := context.Background()
	store := NewStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	owner := uuid.NewString()
	sharedID := uuid.NewString()
	require.NoError(t, store.InTx(ctx, owner, func(tx domain.Tx) error {
		return tx.Exercises().Insert(ctx, domain.Exercise{
			SyncMeta: domain.SyncMeta{ID: sharedID, Version: 1, CreatedAt: now, UpdatedAt: now},
			Name:     "Row",
		})
	}))

	other := uuid.NewString()
	require.NoError(t, store.InTx(ctx, other, func(tx domain.Tx) error {
		rows, err := tx.Exercises().All(ctx)
		require.NoError(t, err)
		require.Empty(t, rows, "rows of other users must not be visible")
		return nil
	}))

	err := store.InTx(ctx, other, func(tx domain.Tx) error {
		return tx.Exercises().Insert(ctx, domain.Exercise{
			SyncMeta: domain.SyncMeta{ID: sharedID, Version: 1, CreatedAt: now, UpdatedAt: now},
			Name:     "Row",
		})
	})
	require.ErrorIs(t, err, domain.ErrEntityExists, "ids are global across users")
}

func TestStoreInsertDuplicateAndVersionCheckedUpdate(t *testing.T) {
	pool := database.SetupTestDB(t)
	ctx := context.Background()
	store := NewStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)
	userID := uuid.NewString()

	ex := domain.Exercise{
		SyncMeta: domain.SyncMeta{ID: uuid.NewString(), Version: 1, CreatedAt: now, UpdatedAt: now},
		Name:     "Press",
	}
	require.NoError(t, store.InTx(ctx, userID, func(tx domain.Tx) error {
		return tx.Exercises().Insert(ctx, ex)
	}))

	err := store.InTx(ctx, userID, func(tx domain.Tx) error {
		return tx.Exercises().Insert(ctx, ex)
	})
	require.ErrorIs(t, err, domain.ErrEntityExists)

	stale := ex
	stale.Version = 5
	err = store.InTx(ctx, userID, func(tx domain.Tx) error {
		return tx.Exercises().Update(ctx, stale)
	})
	require.ErrorIs(t, err, domain.ErrConcurrentModification)

	missing := ex
	missing.ID = uuid.NewString()
	missing.Version = 2
	err = store.InTx(ctx, userID, func(tx domain.Tx) error {
		return tx.Exercises().Update(ctx, missing)
	})
	require.ErrorIs(t, err, domain.ErrEntityNotFound)

	next := ex
	next.Version = 2
	next.Name = "Overhead Press"
	require.NoError(t, store.InTx(ctx, userID, func(tx domain.Tx) error {
		return tx.Exercises().Update(ctx, next)
	}))

	require.NoError(t, store.InTx(ctx, userID, func(tx domain.Tx) error {
		since := now.Add(-time.Second)
		rows, err := tx.Exercises().ChangedSince(ctx, &since)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "Overhead Press", rows[0].Name)
		require.Equal(t, 2, rows[0].Version)
		return nil
	}))
}
