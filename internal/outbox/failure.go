package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertDeadLetter = `INSERT INTO outbox_dlq (user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, dedupe_key, next_retry_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, NOW())`

// deadLetter is an outbox row on its way to outbox_dlq.
type deadLetter struct {
	msg    Message
	reason string
}

// DLQWriter persists failed events for the DLQ manager.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write stores all letters in one round trip. Entries are due immediately so the manager
// retries them on its next pass.
func (w *DLQWriter) Write(ctx context.Context, letters []deadLetter) error {
	if len(letters) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, letter := range letters {
		msg := letter.msg
		batch.Queue(insertDeadLetter,
			msg.UserID, msg.EventID, msg.EventType, msg.Topic, []byte(msg.Payload), letter.reason,
			msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey, msg.DedupeKey,
		)
	}
	return w.pool.SendBatch(ctx, batch).Close()
}
