package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"ClimaPulse/internal/domain/errs"
	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	"ClimaPulse/internal/service/validation"
	applogger "ClimaPulse/pkg/logger"
	"ClimaPulse/pkg/metrics"
)

// Listener receives every refreshed value of a topic. Returned errors and
// panics are logged and do not affect other listeners.
type Listener func(ctx context.Context, dp models.DataPoint) error

// Unsubscribe removes one subscription. Calling it more than once is a no-op.
type Unsubscribe func()

var ErrNilListener = errors.New("listener is nil")

type SubscriptionConfig struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
}

type subscriber struct {
	sub      models.Subscription
	listener Listener
}

// topic is the refresh loop of one indicator × region pair. It exists
// exactly as long as it has subscribers.
type topic struct {
	key       models.TopicKey
	indicator models.Indicator
	region    string

	ctx    context.Context
	cancel context.CancelFunc
	ticker clockwork.Ticker

	subs map[string]subscriber
	last *models.DataPoint
}

// SubscriptionManager runs one refresh loop per active topic and fans each
// refreshed value out to the alert evaluator, the history store and every
// listener of the topic.
type SubscriptionManager struct {
	cfg     SubscriptionConfig
	gate    *validation.Gate
	source  domrepo.DataSource
	alerts  *AlertEvaluator
	history domrepo.HistoryStore
	metrics domrepo.Metrics
	log     *applogger.Logger
	clock   clockwork.Clock

	mu     sync.Mutex
	topics map[models.TopicKey]*topic
	wg     sync.WaitGroup
	closed bool
}

// NewSubscriptionManager builds a manager. alerts and history may be nil.
func NewSubscriptionManager(
	cfg SubscriptionConfig,
	gate *validation.Gate,
	source domrepo.DataSource,
	alerts *AlertEvaluator,
	history domrepo.HistoryStore,
	m domrepo.Metrics,
	log *applogger.Logger,
	clock clockwork.Clock,
) *SubscriptionManager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = cfg.PollInterval
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SubscriptionManager{
		cfg:     cfg,
		gate:    gate,
		source:  source,
		alerts:  alerts,
		history: history,
		metrics: m,
		log:     log.With(applogger.String("component", "subscriptions")),
		clock:   clock,
		topics:  make(map[models.TopicKey]*topic),
	}
}

// Subscribe registers listener on the topic. The first subscriber of a topic
// starts its refresh loop, which fetches once immediately and then every
// poll interval.
func (m *SubscriptionManager) Subscribe(ctx context.Context, indicator, region string, listener Listener) (models.Subscription, Unsubscribe, error) {
	req := models.TopicRequest{Indicator: indicator, Region: region}
	if err := m.gate.Check(ctx, "subscribe", &req); err != nil {
		return models.Subscription{}, nil, err
	}
	if listener == nil {
		return models.Subscription{}, nil, ErrNilListener
	}
	ind, _ := models.ParseIndicator(indicator)
	region = strings.TrimSpace(region)
	key := models.NewTopicKey(ind, region)

	sub := models.Subscription{ID: uuid.NewString(), Topic: key, CreatedAt: m.clock.Now().UTC()}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return models.Subscription{}, nil, errors.New("subscription manager closed")
	}
	t, ok := m.topics[key]
	if !ok {
		t = m.startLocked(key, ind, region)
	}
	t.subs[sub.ID] = subscriber{sub: sub, listener: listener}
	active := len(m.topics)
	m.mu.Unlock()

	m.metrics.SetActiveTopics(active)
	m.log.Debug("subscribed", applogger.String("topic", key.String()), applogger.String("id", sub.ID))

	var once sync.Once
	return sub, func() { once.Do(func() { m.remove(t, sub.ID) }) }, nil
}

func (m *SubscriptionManager) startLocked(key models.TopicKey, ind models.Indicator, region string) *topic {
	ctx, cancel := context.WithCancel(context.Background())
	t := &topic{
		key:       key,
		indicator: ind,
		region:    region,
		ctx:       ctx,
		cancel:    cancel,
		ticker:    m.clock.NewTicker(m.cfg.PollInterval),
		subs:      make(map[string]subscriber),
	}
	m.topics[key] = t

	m.wg.Add(1)
	go m.loop(t)

	m.log.Info("topic started",
		applogger.String("topic", key.String()),
		applogger.Duration("interval_ms", m.cfg.PollInterval))
	return t
}

func (m *SubscriptionManager) loop(t *topic) {
	defer m.wg.Done()

	m.tick(t)
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-t.ticker.Chan():
			m.tick(t)
		}
	}
}

func (m *SubscriptionManager) tick(t *topic) {
	fctx, cancel := context.WithTimeout(t.ctx, m.cfg.FetchTimeout)
	defer cancel()

	dp, err := m.source.Latest(fctx, t.indicator, t.region, t.last)
	if t.ctx.Err() != nil {
		return
	}
	if err != nil {
		m.log.Error("refresh failed", applogger.String("topic", t.key.String()), applogger.Error(err))
		return
	}
	t.last = &dp
	m.metrics.RecordTick(string(t.indicator))

	if m.alerts != nil {
		m.alerts.Evaluate(t.ctx, t.key, dp)
	}
	if m.history != nil {
		if err := m.history.Record(fctx, t.indicator, t.region, dp); err != nil {
			m.log.Warn("history record failed", applogger.String("topic", t.key.String()), applogger.Error(err))
		}
	}

	m.mu.Lock()
	if m.topics[t.key] != t {
		m.mu.Unlock()
		return
	}
	subs := make([]subscriber, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		m.deliver(t, s, dp)
	}
}

func (m *SubscriptionManager) deliver(t *topic, s subscriber, dp models.DataPoint) {
	defer func() {
		if r := recover(); r != nil {
			m.listenerFailed(t, s, errs.Callback(t.key.String(), fmt.Errorf("panic: %v", r)))
		}
	}()
	if err := s.listener(t.ctx, dp); err != nil {
		m.listenerFailed(t, s, errs.Callback(t.key.String(), err))
	}
}

func (m *SubscriptionManager) listenerFailed(t *topic, s subscriber, err error) {
	m.metrics.RecordListenerFailure(string(t.indicator))
	m.log.Warn("listener failed",
		applogger.String("topic", t.key.String()),
		applogger.String("subscription", s.sub.ID),
		applogger.String("kind", string(errs.KindOf(err))),
		applogger.Error(err))
}

func (m *SubscriptionManager) remove(t *topic, id string) {
	m.mu.Lock()
	if _, ok := t.subs[id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(t.subs, id)
	stopped := false
	if len(t.subs) == 0 && m.topics[t.key] == t {
		m.stopLocked(t)
		stopped = true
	}
	active := len(m.topics)
	m.mu.Unlock()

	m.metrics.SetActiveTopics(active)
	if stopped {
		m.log.Info("topic stopped", applogger.String("topic", t.key.String()))
	}
}

func (m *SubscriptionManager) stopLocked(t *topic) {
	t.ticker.Stop()
	t.cancel()
	delete(m.topics, t.key)
}

// TopicCount returns the number of topics with a running refresh loop.
func (m *SubscriptionManager) TopicCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.topics)
}

// ListenerCount returns the number of subscribers of a topic.
func (m *SubscriptionManager) ListenerCount(key models.TopicKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.topics[key]; ok {
		return len(t.subs)
	}
	return 0
}

// Close stops every refresh loop and waits for in-flight ticks to finish.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	m.closed = true
	for _, t := range m.topics {
		m.stopLocked(t)
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.metrics.SetActiveTopics(0)
}
