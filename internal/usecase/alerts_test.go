package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ClimaPulse/internal/domain/errs"
	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	"ClimaPulse/internal/service/validation"
	applogger "ClimaPulse/pkg/logger"
	"ClimaPulse/pkg/metrics"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) Sent() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.sent...)
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(context.Context, models.Notification) error { panic("boom") }

func newEvaluator(n domrepo.Notifier) *AlertEvaluator {
	return NewAlertEvaluator(validation.New(), n, metrics.Nop{}, applogger.Nop(), nil, time.Second)
}

func TestAlertRule_Predicate(t *testing.T) {
	tests := []struct {
		name      string
		kind      models.ThresholdKind
		direction models.Direction
		change    float64
		percent   float64
		want      bool
	}{
		{"percentage increase above", models.ThresholdPercentage, models.DirectionIncrease, 25, 6, true},
		{"percentage wrong direction", models.ThresholdPercentage, models.DirectionIncrease, -25, -6, false},
		{"percentage below threshold", models.ThresholdPercentage, models.DirectionIncrease, 16, 4, false},
		{"percentage at threshold", models.ThresholdPercentage, models.DirectionIncrease, 21, 5, true},
		{"decrease matches", models.ThresholdPercentage, models.DirectionDecrease, -25, -6, true},
		{"both either way", models.ThresholdPercentage, models.DirectionBoth, -25, -6, true},
		{"absolute uses change", models.ThresholdAbsolute, models.DirectionBoth, 5.5, 0.1, true},
		{"absolute below", models.ThresholdAbsolute, models.DirectionBoth, 4.9, 99, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := models.AlertRule{Threshold: 5, Kind: tt.kind, Direction: tt.direction}
			got := rule.Triggered(models.DataPoint{Change: tt.change, ChangePercent: tt.percent})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlertEvaluator_NotifiesOnTrigger(t *testing.T) {
	n := &recordingNotifier{}
	a := newEvaluator(n)
	ctx := context.Background()

	rule, err := a.SetAlert(ctx, models.AlertRequest{
		Indicator: "co2", Region: "Germany", Threshold: 5, Kind: "percentage", Direction: "increase",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TopicKey("co2:germany"), rule.Topic)

	assert.True(t, a.Evaluate(ctx, rule.Topic, models.DataPoint{Value: 445, Change: 25, ChangePercent: 6}))
	assert.False(t, a.Evaluate(ctx, rule.Topic, models.DataPoint{Value: 395, Change: -25, ChangePercent: -6}))
	assert.False(t, a.Evaluate(ctx, rule.Topic, models.DataPoint{Value: 436, Change: 16, ChangePercent: 4}))
	a.Wait()

	sent := n.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, 6.0, sent[0].Event.ChangePercent)
	assert.Equal(t, 5.0, sent[0].Event.Threshold)
	assert.Contains(t, sent[0].Title, "Germany")
	assert.Contains(t, sent[0].Body, "+6.00%")
}

func TestAlertEvaluator_ReplaceAndRemove(t *testing.T) {
	a := newEvaluator(nil)
	ctx := context.Background()
	key := models.NewTopicKey(models.IndicatorGDP, "Chile")

	_, err := a.SetAlert(ctx, models.AlertRequest{Indicator: "gdp", Region: "Chile", Threshold: 1, Kind: "absolute", Direction: "both"})
	require.NoError(t, err)
	_, err = a.SetAlert(ctx, models.AlertRequest{Indicator: "gdp", Region: " chile", Threshold: 3, Kind: "absolute", Direction: "both"})
	require.NoError(t, err)

	rule, ok := a.Rule(key)
	require.True(t, ok)
	assert.Equal(t, 3.0, rule.Threshold)
	assert.Len(t, a.Rules(), 1)

	assert.True(t, a.RemoveRule(key))
	assert.False(t, a.RemoveRule(key))
	assert.False(t, a.Evaluate(ctx, key, models.DataPoint{Change: 100}))
}

func TestAlertEvaluator_RejectsInvalidRule(t *testing.T) {
	a := newEvaluator(nil)

	_, err := a.SetAlert(context.Background(), models.AlertRequest{Indicator: "co2", Region: "Germany", Threshold: -1, Kind: "absolute", Direction: "both"})

	assert.True(t, errs.IsKind(err, errs.KindValidation))
	assert.Empty(t, a.Rules())
}

func TestAlertEvaluator_NotifierFailuresAreContained(t *testing.T) {
	ctx := context.Background()
	key := models.NewTopicKey(models.IndicatorCO2, "Germany")
	rule := models.AlertRule{Indicator: models.IndicatorCO2, Region: "Germany", Threshold: 1, Kind: models.ThresholdAbsolute, Direction: models.DirectionBoth}

	failing := newEvaluator(&recordingNotifier{err: errors.New("smtp down")})
	failing.SetRule(key, rule)
	assert.True(t, failing.Evaluate(ctx, key, models.DataPoint{Change: 2}))
	failing.Wait()

	panicking := newEvaluator(panickingNotifier{})
	panicking.SetRule(key, rule)
	assert.NotPanics(t, func() {
		assert.True(t, panicking.Evaluate(ctx, key, models.DataPoint{Change: 2}))
		panicking.Wait()
	})
}

func TestAlertEvaluator_NilNotifierLogsOnly(t *testing.T) {
	a := newEvaluator(nil)
	key := models.NewTopicKey(models.IndicatorCO2, "Germany")
	a.SetRule(key, models.AlertRule{Threshold: 1, Kind: models.ThresholdAbsolute, Direction: models.DirectionBoth})

	assert.True(t, a.Evaluate(context.Background(), key, models.DataPoint{Change: 2}))
	a.Wait()
}
