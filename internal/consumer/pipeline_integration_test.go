//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap/zaptest"

	"github.com/qiuhuiming/titan-track/database"
	"github.com/qiuhuiming/titan-track/internal/domain"
	"github.com/qiuhuiming/titan-track/internal/outbox"
	"github.com/qiuhuiming/titan-track/internal/persistence/postgres"
)

type fixedRegistry struct{}

func (fixedRegistry) EnsureSchema(context.Context, string, string) (int, error) { return 11, nil }

func TestSyncEventsFlowFromOutboxToEventLog(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkacontainer.WithClusterID("titan-sync"),
		testcontainers.WithEnv(map[string]string{"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true"}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	require.NoError(t, conn.CreateTopics(
		kafka.TopicConfig{Topic: "sync_entity_changed", NumPartitions: 1, ReplicationFactor: 1},
		kafka.TopicConfig{Topic: "sync_conflicts", NumPartitions: 1, ReplicationFactor: 1},
	))
	require.NoError(t, conn.Close())

	pool := database.SetupTestDB(t)
	userID := uuid.NewString()
	engine := domain.NewEngine(postgres.NewStore(pool))

	first, err := domain.DecodeBatch(nil, []json.RawMessage{json.RawMessage(`{"id":"` + userID + `-p1","date":"2025-05-01","title":"Pull","version":3}`)}, nil)
	require.NoError(t, err)
	_, err = engine.Sync(ctx, domain.Identity{UserID: userID, DeviceID: "phone"}, nil, first)
	require.NoError(t, err)

	stale, err := domain.DecodeBatch(nil, []json.RawMessage{json.RawMessage(`{"id":"` + userID + `-p1","date":"2025-05-01","title":"Old","version":2}`)}, nil)
	require.NoError(t, err)
	result, err := engine.Sync(ctx, domain.Identity{UserID: userID, DeviceID: "tablet"}, nil, stale)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)

	logger := zaptest.NewLogger(t)
	producer := outbox.NewKafkaProducer(brokers, logger)
	t.Cleanup(func() { _ = producer.Close() })
	dispatcher := outbox.NewDispatcher(pool, producer, fixedRegistry{}, 50*time.Millisecond, 10, outbox.WithLogger(logger))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go dispatcher.Start(runCtx)

	handler := NewPersistenceHandler(pool)
	for _, topic := range []string{"sync_entity_changed", "sync_conflicts"} {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     "sync-event-log-it",
			Topic:       topic,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		})
		t.Cleanup(func() { _ = reader.Close() })
		proc := NewProcessor(reader, handler, WithLogger(logger))
		go func() { _ = proc.Run(runCtx) }()
	}

	require.Eventually(t, func() bool {
		var changed, conflicts int
		err := pool.QueryRow(ctx, `SELECT
                COUNT(*) FILTER (WHERE event_type = 'entity.changed'),
                COUNT(*) FILTER (WHERE event_type = 'sync.conflict_detected')
              FROM sync_event_log WHERE user_id = $1`, userID).Scan(&changed, &conflicts)
		return err == nil && changed == 1 && conflicts == 1
	}, 90*time.Second, 500*time.Millisecond)

	var entityID string
	var schemaID int
	require.NoError(t, pool.QueryRow(ctx, `SELECT entity_id, schema_id FROM sync_event_log WHERE user_id = $1 AND event_type = 'sync.conflict_detected'`, userID).Scan(&entityID, &schemaID))
	require.Equal(t, userID+"-p1", entityID)
	require.Equal(t, 11, schemaID)

	stop()
	dispatcher.Wait()
}
