package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestKafkaProducerReusesWriterPerTopic(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"}, zaptest.NewLogger(t),
		WithBatchTimeout(5*time.Millisecond),
		WithTopicAutoCreation(),
	)

	changed := p.writer("sync_entity_changed")
	require.Same(t, changed, p.writer("sync_entity_changed"))
	require.NotSame(t, changed, p.writer("sync_conflicts"))
	require.Equal(t, 5*time.Millisecond, changed.BatchTimeout)
	require.True(t, changed.AllowAutoTopicCreation)

	require.NoError(t, p.Close())
	require.Empty(t, p.writers)
}

func TestKafkaProducerDefaults(t *testing.T) {
	p := NewKafkaProducer(nil, nil, WithBatchTimeout(0))
	require.Equal(t, 50*time.Millisecond, p.batchTimeout)
	require.False(t, p.writer("sync_conflicts").AllowAutoTopicCreation)
	require.NoError(t, p.Close())
}
