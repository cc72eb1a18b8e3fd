package consumer

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PersistenceHandler writes consumed events into Postgres for downstream auditing.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle stores the event in sync_event_log. Redelivered records are ignored by their Kafka
// coordinates.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	var dedupeKey *string
	if msg.DedupeKey != "" {
		dedupeKey = &msg.DedupeKey
	}
	receivedAt := msg.Timestamp
	if receivedAt.IsZero() {
		receivedAt = nowUTC()
	}

	_, err := h.pool.Exec(ctx,
		`INSERT INTO sync_event_log (topic, partition, kafka_offset, event_type, user_id, entity_type, entity_id, schema_id, schema_subject, dedupe_key, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
         ON CONFLICT (topic, partition, kafka_offset) DO NOTHING`,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.EventType,
		msg.UserID,
		msg.EntityType,
		msg.EntityID,
		msg.SchemaID,
		msg.SchemaSubject,
		dedupeKey,
		[]byte(msg.Payload),
		receivedAt,
	)
	return err
}
