package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ProducerOption tunes the writers created by a KafkaProducer.
type ProducerOption func(*KafkaProducer)

// WithBatchTimeout bounds how long a writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(p *KafkaProducer) {
		if d > 0 {
			p.batchTimeout = d
		}
	}
}

// WithTopicAutoCreation lets the writers create missing topics on first write.
func WithTopicAutoCreation() ProducerOption {
	return func(p *KafkaProducer) {
		p.autoCreateTopics = true
	}
}

// KafkaProducer owns one synchronous writer per sync topic. Messages are keyed by user and
// entity, so the hash balancer keeps every change of an entity on one partition in order.
type KafkaProducer struct {
	brokers          []string
	logger           *zap.Logger
	batchTimeout     time.Duration
	autoCreateTopics bool

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer. Writers are created on first use of a topic.
func NewKafkaProducer(brokers []string, logger *zap.Logger, opts ...ProducerOption) *KafkaProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &KafkaProducer{
		brokers:      brokers,
		logger:       logger,
		batchTimeout: 50 * time.Millisecond,
		writers:      make(map[string]*kafka.Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WriteMessages publishes msgs to topic and blocks until every broker replica acknowledged them.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	start := time.Now()
	err := p.writer(topic).WriteMessages(ctx, msgs...)
	observeKafkaWrite(topic, err, time.Since(start))
	return err
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	errorLog := p.logger.Sugar().With("topic", topic)
	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           p.batchTimeout,
		AllowAutoTopicCreation: p.autoCreateTopics,
		ErrorLogger:            kafka.LoggerFunc(errorLog.Errorf),
	}
	p.writers[topic] = w
	return w
}

// Close flushes and closes every writer. The first close error is returned.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.logger.Warn("close kafka writer", zap.String("topic", topic), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
		delete(p.writers, topic)
	}
	return firstErr
}
