// Package outbox delivers sync events recorded in the outbox table to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Dispatcher drains the outbox table and delivers events to Kafka using Schema Registry metadata.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         schemaRegistrar
	dlq              *DLQWriter
	pollInterval     time.Duration
	batchSize        int
	logger           *zap.Logger
	now              func() time.Time
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, opts ...DispatcherOption) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	d := &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		dlq:              NewDLQWriter(pool),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		logger:           zap.NewNop(),
		now:              func() time.Time { return time.Now().UTC() },
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the polling loop and blocks until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	d.logger.Info("outbox dispatcher started",
		zap.Duration("poll_interval", d.pollInterval),
		zap.Int("batch_size", d.batchSize),
	)
	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatcher error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.fetchAndClaim(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { observeBatch(len(messages), time.Since(start)) }()

	valid, rejected := d.partition(messages)
	if err := d.moveToDLQ(ctx, rejected, causeSchema); err != nil {
		return err
	}

	if len(valid) > 0 {
		if err := d.deliver(ctx, valid); err != nil {
			d.logger.Warn("outbox delivery failure",
				zap.Int("messages", len(valid)),
				zap.Error(err),
			)
			recordFailed(valid)
			letters := make([]deadLetter, 0, len(valid))
			for _, msg := range valid {
				letters = append(letters, deadLetter{msg: msg, reason: fmt.Sprintf("%s (topic=%s)", err, msg.Topic)})
			}
			if dlqErr := d.moveToDLQ(ctx, letters, causeDelivery); dlqErr != nil {
				return dlqErr
			}
		} else {
			recordDelivered(valid)
		}
	}

	return d.markPublished(ctx, messages)
}

// partition splits a batch into messages that match their registered schema and dead letters
// that skip Kafka entirely.
func (d *Dispatcher) partition(messages []Message) ([]Message, []deadLetter) {
	valid := make([]Message, 0, len(messages))
	var invalid []deadLetter
	for _, msg := range messages {
		meta, ok := schemaCatalog[msg.EventType]
		if !ok {
			invalid = append(invalid, deadLetter{msg: msg, reason: fmt.Sprintf("no schema metadata for event_type=%s", msg.EventType)})
			continue
		}
		if err := meta.Validate(msg.Payload); err != nil {
			invalid = append(invalid, deadLetter{msg: msg, reason: fmt.Sprintf("schema validation failed: %v", err)})
			continue
		}
		valid = append(valid, msg)
	}
	return valid, invalid
}

func (d *Dispatcher) fetchAndClaim(ctx context.Context) (messages []Message, err error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const query = `SELECT event_id, user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, d.batchSize)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.EventID, &msg.UserID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.SchemaSubject, &msg.PartitionKey, &msg.Payload, &msg.DedupeKey); err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, msg)
		ids = append(ids, msg.EventID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		_ = tx.Rollback(ctx)
		return nil, nil
	}

	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}

	return messages, nil
}

func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches := make(map[string][]kafka.Message)
	order := make([]string, 0)

	for _, msg := range messages {
		schemaID, err := d.schemaID(ctx, msg)
		if err != nil {
			return err
		}

		record := kafka.Message{
			Key:     []byte(msg.PartitionKey),
			Value:   encodeWireFormat(schemaID, msg.Payload),
			Headers: messageHeaders(msg),
			Time:    d.now(),
		}

		if _, exists := batches[msg.Topic]; !exists {
			order = append(order, msg.Topic)
		}
		batches[msg.Topic] = append(batches[msg.Topic], record)
	}

	for _, topic := range order {
		if err := d.producer.WriteMessages(ctx, topic, batches[topic]...); err != nil {
			return fmt.Errorf("write %s: %w", topic, err)
		}
	}

	return nil
}

func (d *Dispatcher) schemaID(ctx context.Context, msg Message) (int, error) {
	meta := schemaCatalog[msg.EventType]
	cacheKey := fmt.Sprintf("%s::%s", msg.SchemaSubject, meta.Schema)
	if cached, found := d.schemaIDCache.Load(cacheKey); found {
		return cached.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, meta.Schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

func messageHeaders(msg Message) []kafka.Header {
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(msg.EventType)},
		{Key: "user_id", Value: []byte(msg.UserID)},
		{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
	}
	if msg.DedupeKey != nil && *msg.DedupeKey != "" {
		headers = append(headers, kafka.Header{Key: "dedupe_key", Value: []byte(*msg.DedupeKey)})
	}
	return headers
}

func (d *Dispatcher) markPublished(ctx context.Context, messages []Message) error {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
	return err
}

func (d *Dispatcher) moveToDLQ(ctx context.Context, letters []deadLetter, cause string) error {
	if len(letters) == 0 {
		return nil
	}
	if err := d.dlq.Write(ctx, letters); err != nil {
		return fmt.Errorf("write dlq: %w", err)
	}
	recordDeadLetters(letters, cause)
	for _, letter := range letters {
		d.logger.Warn("outbox event moved to dlq",
			zap.Int64("event_id", letter.msg.EventID),
			zap.String("event_type", letter.msg.EventType),
			zap.String("user_id", letter.msg.UserID),
			zap.String("cause", cause),
			zap.String("reason", letter.reason),
		)
	}
	return nil
}

// Message represents a row fetched from outbox.
type Message struct {
	EventID       int64
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
	DedupeKey     *string
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

// DecodeWireFormat strips Confluent framing and returns the schema id and payload.
func DecodeWireFormat(frame []byte) (int, []byte, error) {
	if len(frame) < 5 || frame[0] != 0 {
		return 0, nil, errors.New("payload is not in schema registry wire format")
	}
	return int(binary.BigEndian.Uint32(frame[1:5])), frame[5:], nil
}
