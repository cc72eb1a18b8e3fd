package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "consumer",
		Name:      "events_persisted_total",
		Help:      "Sync events written to the audit log by topic and entity type.",
	}, []string{"topic", "entity_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Handler failures per topic. The message is redelivered.",
	}, []string{"topic"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Malformed messages committed without handling, per topic.",
	}, []string{"topic"})

	fetchRetryCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "titan_sync",
		Subsystem: "consumer",
		Name:      "fetch_retries_total",
		Help:      "Kafka fetch failures that were retried after a backoff.",
	})

	deliveryLag = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "titan_sync",
		Subsystem: "consumer",
		Name:      "delivery_lag_seconds",
		Help:      "Time between the Kafka append and the audit log commit.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter, fetchRetryCounter, deliveryLag)
}

var nowUTC = func() time.Time { return time.Now().UTC() }

func recordProcessed(msg Message) {
	entityType := msg.EntityType
	if entityType == "" {
		entityType = "unknown"
	}
	processedCounter.WithLabelValues(msg.Topic, entityType).Inc()
	if msg.Timestamp.IsZero() {
		return
	}
	lag := nowUTC().Sub(msg.Timestamp)
	if lag < 0 {
		lag = 0
	}
	deliveryLag.WithLabelValues(msg.Topic).Observe(lag.Seconds())
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

func recordFetchRetry() {
	fetchRetryCounter.Inc()
}
