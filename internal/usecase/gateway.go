package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"ClimaPulse/internal/domain/errs"
	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	svccache "ClimaPulse/internal/service/cache"
	"ClimaPulse/internal/service/retry"
	"ClimaPulse/internal/service/validation"
	"ClimaPulse/internal/services/synthetic"
	applogger "ClimaPulse/pkg/logger"
	"ClimaPulse/pkg/metrics"
)

type GatewayConfig struct {
	// Demo skips the backend and answers everything from the synthetic producer.
	Demo bool
}

type GatewayOption func(*Gateway)

func WithGatewayClock(c clockwork.Clock) GatewayOption {
	return func(g *Gateway) { g.clock = c }
}

// Gateway is the single entry point for backend requests. Every operation
// validates, consults the result cache, calls the backend under the retry
// policy and, when that fails, answers with synthetic data. The only error
// a caller ever sees is a VALIDATION error.
type Gateway struct {
	cfg     GatewayConfig
	gate    *validation.Gate
	cache   *svccache.ResultCache
	retry   *retry.Policy
	remote  domrepo.Remote
	synth   *synthetic.Producer
	metrics domrepo.Metrics
	log     *applogger.Logger
	clock   clockwork.Clock
	group   singleflight.Group
}

func NewGateway(
	cfg GatewayConfig,
	gate *validation.Gate,
	cache *svccache.ResultCache,
	policy *retry.Policy,
	remote domrepo.Remote,
	synth *synthetic.Producer,
	m domrepo.Metrics,
	log *applogger.Logger,
	opts ...GatewayOption,
) *Gateway {
	if m == nil {
		m = metrics.Nop{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	g := &Gateway{
		cfg:     cfg,
		gate:    gate,
		cache:   cache,
		retry:   policy,
		remote:  remote,
		synth:   synth,
		metrics: m,
		log:     log.With(applogger.String("component", "gateway")),
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Demo reports whether the gateway runs without a backend.
func (g *Gateway) Demo() bool { return g.cfg.Demo }

// GetForecast returns a forecast series for the requested topic and range.
func (g *Gateway) GetForecast(ctx context.Context, req models.ForecastRequest) (*models.ForecastSeries, error) {
	if err := g.gate.Check(ctx, string(models.OpForecast), &req); err != nil {
		return nil, g.rejected(err)
	}
	ind, _ := models.ParseIndicator(req.Indicator)
	region := strings.TrimSpace(req.Region)
	tr := models.TimeRange(strings.ToLower(strings.TrimSpace(req.TimeRange)))

	return run(ctx, g, call[models.ForecastSeries]{
		key: models.RequestKey{Kind: models.OpForecast, Indicator: ind, Region: region, TimeRange: tr},
		payload: map[string]string{
			"indicator": string(ind),
			"region":    region,
			"timeRange": string(tr),
		},
		accept: func(s *models.ForecastSeries) error {
			if err := s.Validate(); err != nil {
				return err
			}
			s.Indicator, s.Region, s.TimeRange = ind, region, tr
			s.Summary.TrendDirection = models.DeriveTrend(s.Points)
			s.Source, s.Reliability = models.SourceRemote, models.ReliabilityVerified
			if s.GeneratedAt.IsZero() {
				s.GeneratedAt = g.clock.Now().UTC()
			}
			return nil
		},
		produce: func(src models.Source) *models.ForecastSeries {
			return g.synth.Forecast(ind, region, tr, src)
		},
	}), nil
}

// GetNarrativeInsight returns a text insight for a topic.
func (g *Gateway) GetNarrativeInsight(ctx context.Context, req models.TopicRequest) (*models.Narrative, error) {
	if err := g.gate.Check(ctx, string(models.OpNarrative), &req); err != nil {
		return nil, g.rejected(err)
	}
	ind, _ := models.ParseIndicator(req.Indicator)
	region := strings.TrimSpace(req.Region)

	return run(ctx, g, call[models.Narrative]{
		key:     models.RequestKey{Kind: models.OpNarrative, Indicator: ind, Region: region},
		payload: map[string]string{"indicator": string(ind), "region": region},
		accept: func(n *models.Narrative) error {
			if err := n.Validate(); err != nil {
				return err
			}
			n.Indicator, n.Region = ind, region
			n.Source, n.Reliability = models.SourceRemote, models.ReliabilityVerified
			if n.GeneratedAt.IsZero() {
				n.GeneratedAt = g.clock.Now().UTC()
			}
			return nil
		},
		produce: func(src models.Source) *models.Narrative {
			return g.synth.Narrative(ind, region, src)
		},
	}), nil
}

// GetStructuredTable answers a free-form prompt with rows over the requested columns.
func (g *Gateway) GetStructuredTable(ctx context.Context, req models.TableRequest) (*models.Table, error) {
	if err := g.gate.Check(ctx, string(models.OpTable), &req); err != nil {
		return nil, g.rejected(err)
	}
	prompt := strings.TrimSpace(req.Prompt)
	columns := append([]string(nil), req.Columns...)
	// column names may contain commas, so the key carries the JSON list
	encoded, _ := json.Marshal(columns)

	return run(ctx, g, call[models.Table]{
		key: models.RequestKey{
			Kind: models.OpTable,
			Params: map[string]string{
				"prompt":  prompt,
				"columns": string(encoded),
			},
		},
		payload: map[string]interface{}{"prompt": prompt, "columns": columns},
		accept: func(t *models.Table) error {
			t.Columns = columns
			if err := t.Validate(); err != nil {
				return err
			}
			t.Source, t.Reliability = models.SourceRemote, models.ReliabilityVerified
			if t.GeneratedAt.IsZero() {
				t.GeneratedAt = g.clock.Now().UTC()
			}
			return nil
		},
		produce: func(src models.Source) *models.Table {
			return g.synth.Table(columns, src)
		},
	}), nil
}

// GetSimilarRegions returns regions whose indicator profile resembles the requested one.
func (g *Gateway) GetSimilarRegions(ctx context.Context, req models.TopicRequest) (*models.SimilarRegions, error) {
	if err := g.gate.Check(ctx, string(models.OpSimilarity), &req); err != nil {
		return nil, g.rejected(err)
	}
	ind, _ := models.ParseIndicator(req.Indicator)
	region := strings.TrimSpace(req.Region)

	return run(ctx, g, call[models.SimilarRegions]{
		key:     models.RequestKey{Kind: models.OpSimilarity, Indicator: ind, Region: region},
		payload: map[string]string{"indicator": string(ind), "region": region},
		accept: func(s *models.SimilarRegions) error {
			if err := s.Validate(); err != nil {
				return err
			}
			sort.SliceStable(s.Results, func(i, j int) bool { return s.Results[i].Score > s.Results[j].Score })
			s.Indicator, s.Region = ind, region
			s.Source, s.Reliability = models.SourceRemote, models.ReliabilityVerified
			if s.GeneratedAt.IsZero() {
				s.GeneratedAt = g.clock.Now().UTC()
			}
			return nil
		},
		produce: func(src models.Source) *models.SimilarRegions {
			return g.synth.SimilarRegions(ind, region, src)
		},
	}), nil
}

// Latest implements repository.DataSource. Values are not cached; change is
// computed against prev.
func (g *Gateway) Latest(ctx context.Context, ind models.Indicator, region string, prev *models.DataPoint) (models.DataPoint, error) {
	if g.cfg.Demo {
		return g.synth.Latest(ctx, ind, region, prev)
	}

	key := models.RequestKey{Kind: models.OpLatest, Indicator: ind, Region: region}
	payload := map[string]string{"indicator": string(ind), "region": region}
	dp, err := retry.DoResult(ctx, g.retry, key.String(), func(ctx context.Context) (*models.DataPoint, error) {
		var dp models.DataPoint
		if err := g.invoke(ctx, key, payload, &dp); err != nil {
			return nil, err
		}
		if math.IsNaN(dp.Value) || math.IsInf(dp.Value, 0) {
			return nil, errs.Remote(key.String(), errors.New("value is not finite"))
		}
		return &dp, nil
	})
	if err != nil {
		g.degraded(key, err)
		return g.synth.DataPoint(ind, region, prev, models.SourceFallback), nil
	}

	dp.Change, dp.ChangePercent = models.ChangeFrom(prev, dp.Value)
	dp.Source, dp.Reliability = models.SourceRemote, models.ReliabilityVerified
	if dp.Timestamp.IsZero() {
		dp.Timestamp = g.clock.Now().UTC()
	}
	return *dp, nil
}

// InvalidateCache drops every cached result.
func (g *Gateway) InvalidateCache(ctx context.Context) error {
	return g.cache.Clear(ctx)
}

type call[T any] struct {
	key     models.RequestKey
	payload interface{}
	// accept validates a decoded backend result and stamps provenance on it.
	accept func(*T) error
	// produce builds the synthetic substitute labelled with src.
	produce func(src models.Source) *T
}

func run[T any](ctx context.Context, g *Gateway, c call[T]) *T {
	var cached T
	if g.cache.Get(ctx, c.key, &cached) {
		return &cached
	}

	if g.cfg.Demo {
		out := c.produce(models.SourceSynthetic)
		g.cache.Set(ctx, c.key, out)
		return out
	}

	id := c.key.String()
	ch := g.group.DoChan(id, func() (interface{}, error) {
		// detached from every caller; bounded by the retry limit and attempt timeout
		sctx := context.WithoutCancel(ctx)
		out, err := retry.DoResult(sctx, g.retry, id, func(ctx context.Context) (*T, error) {
			var out T
			if err := g.invoke(ctx, c.key, c.payload, &out); err != nil {
				return nil, err
			}
			if err := c.accept(&out); err != nil {
				return nil, errs.Remote(id, fmt.Errorf("invalid response: %w", err))
			}
			return &out, nil
		})
		if err == nil {
			g.cache.Set(sctx, c.key, out)
			return out, nil
		}

		g.degraded(c.key, err)
		fallback := c.produce(models.SourceFallback)
		if !errs.IsKind(err, errs.KindCanceled) {
			g.cache.SetFallback(sctx, c.key, fallback)
		}
		return fallback, nil
	})

	select {
	case res := <-ch:
		return res.Val.(*T)
	case <-ctx.Done():
		g.metrics.RecordFallback(string(c.key.Kind))
		g.log.Debug("caller gone, serving synthetic data",
			applogger.String("key", id),
			applogger.Error(ctx.Err()))
		return c.produce(models.SourceFallback)
	}
}

func (g *Gateway) invoke(ctx context.Context, key models.RequestKey, payload, dest interface{}) error {
	kind := string(key.Kind)
	start := time.Now()
	raw, err := g.remote.Invoke(ctx, key.Kind, payload)
	g.metrics.RecordRemoteCall(kind, err, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, domrepo.ErrRemoteNotConfigured) {
			return errs.Permanent(errs.Remote(key.String(), err))
		}
		return errs.Remote(key.String(), err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return errs.Remote(key.String(), fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (g *Gateway) degraded(key models.RequestKey, err error) {
	g.metrics.RecordFallback(string(key.Kind))
	g.log.Error("backend unavailable, serving synthetic data",
		applogger.String("op", string(key.Kind)),
		applogger.String("key", key.String()),
		applogger.String("kind", string(errs.KindOf(err))),
		applogger.Error(err))
}

func (g *Gateway) rejected(err error) error {
	g.log.Debug("request rejected",
		applogger.String("kind", string(errs.KindOf(err))),
		applogger.Int("failures", len(errs.FailuresOf(err))))
	return err
}
