package repository

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ClimaPulse/internal/domain/models"
	pkgkafka "ClimaPulse/pkg/kafka"
)

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func TestKafkaAlertNotifier_KeysByTopic(t *testing.T) {
	w := &memWriter{}
	n := NewKafkaAlertNotifier(pkgkafka.NewProducerWithWriter(w), "climapulse.alerts")

	err := n.Notify(context.Background(), models.Notification{
		Title: "CO₂ Emissions alert: Germany",
		Event: models.AlertEvent{Topic: "co2:germany", ChangePercent: 6},
	})

	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "climapulse.alerts", w.msgs[0].Topic)
	assert.Equal(t, "co2:germany", string(w.msgs[0].Key))

	var got models.Notification
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, 6.0, got.Event.ChangePercent)
}

func TestKafkaAdapters_WithoutProducer(t *testing.T) {
	assert.Error(t, NewKafkaAlertNotifier(nil, "t").Notify(context.Background(), models.Notification{}))
	assert.Error(t, NewKafkaLogPublisher(nil).PublishMessage(context.Background(), "t", "x"))
}

func TestKafkaLogPublisher(t *testing.T) {
	w := &memWriter{}
	p := NewKafkaLogPublisher(pkgkafka.NewProducerWithWriter(w))

	require.NoError(t, p.PublishMessage(context.Background(), "climapulse.logs", []map[string]int{{"count": 3}}))
	require.Len(t, w.msgs, 1)
	assert.JSONEq(t, `[{"count":3}]`, string(w.msgs[0].Value))
}

func TestHistorySchema(t *testing.T) {
	stmts := HistorySchema("climapulse")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "climapulse.datapoints")
	assert.True(t, strings.Contains(stmts[1], "ORDER BY (indicator, region, ts)"))
}

func TestReverse(t *testing.T) {
	dps := []models.DataPoint{{Value: 3}, {Value: 2}, {Value: 1}}
	reverse(dps)
	assert.Equal(t, []float64{1, 2, 3}, []float64{dps[0].Value, dps[1].Value, dps[2].Value})
}
