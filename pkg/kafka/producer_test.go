package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func TestProducer_EncodesValues(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "alerts", []byte("co2:germany"), map[string]int{"n": 1}))
	require.NoError(t, p.Publish(ctx, "alerts", nil, "raw"))
	require.NoError(t, p.Publish(ctx, "alerts", nil, []byte{0x1}))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "alerts", w.msgs[0].Topic)
	assert.Equal(t, []byte("co2:germany"), w.msgs[0].Key)
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, []byte{0x1}, w.msgs[2].Value)
}

func TestProducer_RecordsErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProducerWithWriter(&memWriter{err: errors.New("no leader")}, WithRegisterer(reg))

	err := p.PublishBatch(context.Background(), "logs", []Message{{Value: "a"}, {Value: "b"}})

	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.errs.WithLabelValues("logs")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("logs", "gzip", "error")))
}

func TestProducer_EmptyBatchIsNoop(t *testing.T) {
	w := &memWriter{}
	require.NoError(t, NewProducerWithWriter(w).PublishBatch(context.Background(), "x", nil))
	assert.Empty(t, w.msgs)
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}
