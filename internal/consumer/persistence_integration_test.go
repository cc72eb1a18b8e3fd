//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qiuhuiming/titan-track/database"
)

func TestPersistenceHandlerStoresEventOnce(t *testing.T) {
	ctx := context.Background()
	pool := database.SetupTestDB(t)

	handler := NewPersistenceHandler(pool)

	payload := json.RawMessage(`{"entity_type":"workout_plan","entity_id":"p1","user_id":"user-1","device_id":"tablet","resolution":"server_wins","server_version":3,"client_version":2,"detected_at":"2025-05-01T07:00:00Z"}`)
	msg := Message{
		EventType:     "sync.conflict_detected",
		UserID:        "user-1",
		EntityType:    "workout_plan",
		EntityID:      "p1",
		SchemaID:      42,
		SchemaSubject: "sync_conflicts-value",
		Topic:         "sync_conflicts",
		Partition:     0,
		Offset:        5,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg), "redelivery is ignored")

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM sync_event_log`).Scan(&count))
	require.Equal(t, 1, count)

	var storedPayload []byte
	var entityType string
	var dedupe *string
	require.NoError(t, pool.QueryRow(ctx, `SELECT payload, entity_type, dedupe_key FROM sync_event_log LIMIT 1`).Scan(&storedPayload, &entityType, &dedupe))
	require.JSONEq(t, string(payload), string(storedPayload))
	require.Equal(t, "workout_plan", entityType)
	require.Nil(t, dedupe)
}
