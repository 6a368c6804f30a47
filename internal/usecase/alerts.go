package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	"ClimaPulse/internal/service/validation"
	applogger "ClimaPulse/pkg/logger"
	"ClimaPulse/pkg/metrics"
)

// AlertEvaluator holds at most one threshold rule per topic and dispatches
// a notification whenever a refreshed value crosses it. Dispatch is
// asynchronous; Wait blocks until in-flight notifications are done.
type AlertEvaluator struct {
	gate          *validation.Gate
	notifier      domrepo.Notifier
	metrics       domrepo.Metrics
	log           *applogger.Logger
	clock         clockwork.Clock
	notifyTimeout time.Duration

	mu    sync.RWMutex
	rules map[models.TopicKey]models.AlertRule
	wg    sync.WaitGroup
}

// NewAlertEvaluator builds an evaluator. A nil notifier degrades to logging only.
func NewAlertEvaluator(gate *validation.Gate, notifier domrepo.Notifier, m domrepo.Metrics, log *applogger.Logger, clock clockwork.Clock, notifyTimeout time.Duration) *AlertEvaluator {
	if m == nil {
		m = metrics.Nop{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if notifyTimeout <= 0 {
		notifyTimeout = 5 * time.Second
	}
	return &AlertEvaluator{
		gate:          gate,
		notifier:      notifier,
		metrics:       m,
		log:           log.With(applogger.String("component", "alerts")),
		clock:         clock,
		notifyTimeout: notifyTimeout,
		rules:         make(map[models.TopicKey]models.AlertRule),
	}
}

// SetAlert validates req and installs it as the rule of its topic, replacing
// any previous rule.
func (a *AlertEvaluator) SetAlert(ctx context.Context, req models.AlertRequest) (models.AlertRule, error) {
	if err := a.gate.Check(ctx, "setAlert", &req); err != nil {
		return models.AlertRule{}, err
	}
	ind, _ := models.ParseIndicator(req.Indicator)
	region := strings.TrimSpace(req.Region)
	rule := models.AlertRule{
		Topic:     models.NewTopicKey(ind, region),
		Indicator: ind,
		Region:    region,
		Threshold: req.Threshold,
		Kind:      models.ThresholdKind(req.Kind),
		Direction: models.Direction(req.Direction),
		CreatedAt: a.clock.Now().UTC(),
	}
	a.SetRule(rule.Topic, rule)
	return rule, nil
}

func (a *AlertEvaluator) SetRule(key models.TopicKey, rule models.AlertRule) {
	rule.Topic = key
	a.mu.Lock()
	a.rules[key] = rule
	a.mu.Unlock()
}

// RemoveRule drops the rule of a topic and reports whether one existed.
func (a *AlertEvaluator) RemoveRule(key models.TopicKey) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.rules[key]
	delete(a.rules, key)
	return ok
}

func (a *AlertEvaluator) Rule(key models.TopicKey) (models.AlertRule, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.rules[key]
	return r, ok
}

// Rules returns every installed rule.
func (a *AlertEvaluator) Rules() []models.AlertRule {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.AlertRule, 0, len(a.rules))
	for _, r := range a.rules {
		out = append(out, r)
	}
	return out
}

// Evaluate checks dp against the topic's rule and reports whether it
// triggered. It never panics.
func (a *AlertEvaluator) Evaluate(ctx context.Context, key models.TopicKey, dp models.DataPoint) (triggered bool) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("alert evaluation panicked",
				applogger.String("topic", key.String()),
				applogger.Any("panic", r))
			triggered = false
		}
	}()

	rule, ok := a.Rule(key)
	if !ok || !rule.Triggered(dp) {
		return false
	}

	event := models.AlertEvent{
		Topic:         key,
		Indicator:     rule.Indicator,
		Region:        rule.Region,
		Value:         dp.Value,
		Change:        dp.Change,
		ChangePercent: dp.ChangePercent,
		Threshold:     rule.Threshold,
		Kind:          rule.Kind,
		Direction:     rule.Direction,
		Source:        dp.Source,
		At:            dp.Timestamp,
	}
	a.metrics.RecordAlert(string(rule.Indicator))
	a.log.Warn("alert triggered",
		applogger.String("topic", key.String()),
		applogger.Float64("value", dp.Value),
		applogger.Float64("change", dp.Change),
		applogger.Float64("change_percent", dp.ChangePercent),
		applogger.Float64("threshold", rule.Threshold),
		applogger.String("kind", string(rule.Kind)))

	a.dispatch(ctx, notification(event))
	return true
}

func (a *AlertEvaluator) dispatch(ctx context.Context, n models.Notification) {
	if a.notifier == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("notifier panicked", applogger.Any("panic", r))
			}
		}()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.notifyTimeout)
		defer cancel()
		if err := a.notifier.Notify(nctx, n); err != nil {
			a.log.Error("alert notification failed",
				applogger.String("topic", n.Event.Topic.String()),
				applogger.Error(err))
		}
	}()
}

// Wait blocks until all dispatched notifications have finished.
func (a *AlertEvaluator) Wait() {
	a.wg.Wait()
}

func notification(e models.AlertEvent) models.Notification {
	unit := e.Indicator.Unit()
	change := fmt.Sprintf("%+.2f %s", e.Change, unit)
	threshold := fmt.Sprintf("%.2f %s", e.Threshold, unit)
	if e.Kind == models.ThresholdPercentage {
		change = fmt.Sprintf("%+.2f%%", e.ChangePercent)
		threshold = fmt.Sprintf("%.2f%%", e.Threshold)
	}
	return models.Notification{
		Title: fmt.Sprintf("%s alert: %s", e.Indicator.Label(), e.Region),
		Body:  fmt.Sprintf("%s changed by %s (threshold %s), now %.2f %s", e.Indicator.Label(), change, threshold, e.Value, unit),
		Event: e,
	}
}
