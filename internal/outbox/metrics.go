package outbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dead-letter causes used as the dlq counter label.
const (
	causeDelivery = "delivery"
	causeSchema   = "schema"
)

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Outbox events published to Kafka, by topic.",
	}, []string{"topic"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Outbox events whose Kafka write failed, by topic.",
	}, []string{"topic"})

	invalidCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "outbox",
		Name:      "events_invalid_total",
		Help:      "Outbox events rejected by schema validation, by event type.",
	}, []string{"event_type"})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Outbox events routed to the dead-letter queue, by topic and cause.",
	}, []string{"topic", "cause"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "titan_sync",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent claiming, delivering and marking one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	kafkaWriteDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "titan_sync",
		Subsystem: "outbox",
		Name:      "kafka_write_seconds",
		Help:      "Latency of acknowledged Kafka writes, by topic and result.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"topic", "result"})

	batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "titan_sync",
		Subsystem: "outbox",
		Name:      "batch_size",
		Help:      "Outbox rows claimed per non-empty batch.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, invalidCounter, dlqCounter, batchDuration, batchSize, kafkaWriteDuration)
}

func recordDelivered(messages []Message) {
	for _, msg := range messages {
		deliveredCounter.WithLabelValues(msg.Topic).Inc()
	}
}

func recordFailed(messages []Message) {
	for _, msg := range messages {
		failedCounter.WithLabelValues(msg.Topic).Inc()
	}
}

func recordDeadLetters(letters []deadLetter, cause string) {
	for _, letter := range letters {
		dlqCounter.WithLabelValues(letter.msg.Topic, cause).Inc()
		if cause == causeSchema {
			invalidCounter.WithLabelValues(letter.msg.EventType).Inc()
		}
	}
}

func observeBatch(claimed int, elapsed time.Duration) {
	batchSize.Observe(float64(claimed))
	batchDuration.Observe(elapsed.Seconds())
}

func observeKafkaWrite(topic string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	kafkaWriteDuration.WithLabelValues(topic, result).Observe(elapsed.Seconds())
}
