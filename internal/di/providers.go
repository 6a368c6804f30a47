package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ClimaPulse/internal/domain/models"
	domrepo "ClimaPulse/internal/domain/repository"
	"ClimaPulse/internal/handler/api"
	internalrepo "ClimaPulse/internal/repository"
	svccache "ClimaPulse/internal/service/cache"
	"ClimaPulse/internal/service/retry"
	"ClimaPulse/internal/service/validation"
	"ClimaPulse/internal/services/notify"
	"ClimaPulse/internal/services/remote"
	"ClimaPulse/internal/services/synthetic"
	"ClimaPulse/internal/usecase"
	pkgcache "ClimaPulse/pkg/cache"
	pkgch "ClimaPulse/pkg/clickhouse"
	"ClimaPulse/pkg/config"
	xhttp "ClimaPulse/pkg/http"
	pkgkafka "ClimaPulse/pkg/kafka"
	applogger "ClimaPulse/pkg/logger"
	"ClimaPulse/pkg/metrics"
	"ClimaPulse/pkg/server"
)

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.New(reg)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(true),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. With the collector enabled
// and Kafka available, aggregated error entries go to the log topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      internalrepo.NewKafkaLogPublisher(producer),
		})
	}
	return l, nil
}

// ProvideCacheStore creates the in-process cache, fronting Redis when enabled.
func ProvideCacheStore(cfg *config.Config) (pkgcache.Service, error) {
	memOpts := []pkgcache.MemoryOption{
		pkgcache.WithMemoryMaxSize(cfg.Cache.Memory.MaxSize),
		pkgcache.WithMemoryCleanup(cfg.Cache.Memory.CleanupInterval),
	}
	if !cfg.Cache.Redis.Enabled {
		return pkgcache.NewMemoryCache(memOpts...), nil
	}

	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Cache.Redis.Host),
		pkgcache.WithRedisPort(cfg.Cache.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
		pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
		pkgcache.WithRedisPool(cfg.Cache.Redis.PoolSize, 2, 4*time.Second),
		pkgcache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemory(memOpts...)), nil
}

// ProvideResultCache applies the per-kind TTLs.
func ProvideResultCache(cfg *config.Config, store pkgcache.Service, m domrepo.Metrics, l *applogger.Logger) *svccache.ResultCache {
	return svccache.NewResultCache(store, svccache.Config{
		TTL: map[models.OperationKind]time.Duration{
			models.OpForecast:   cfg.Cache.TTL.Forecast,
			models.OpNarrative:  cfg.Cache.TTL.Narrative,
			models.OpTable:      cfg.Cache.TTL.Table,
			models.OpSimilarity: cfg.Cache.TTL.Similarity,
		},
		FallbackTTL: cfg.Cache.FallbackTTL,
	}, m, l)
}

func ProvideValidationGate() *validation.Gate {
	return validation.New()
}

// ProvideRetryPolicy logs and counts every backoff.
func ProvideRetryPolicy(cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) *retry.Policy {
	log := l.With(applogger.String("component", "retry"))
	return retry.New(retry.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.BaseDelay,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
	}, retry.WithObserver(func(b retry.Backoff) {
		kind, _, _ := strings.Cut(b.OpID, ":")
		m.RecordRetry(kind)
		log.Warn("backend call failed, retrying",
			applogger.String("op", b.OpID),
			applogger.Int("attempt", b.Attempt+1),
			applogger.Duration("delay_ms", b.Delay),
			applogger.Error(b.Err))
	}))
}

func ProvideRemote(cfg *config.Config) domrepo.Remote {
	return remote.NewHTTPRemote(remote.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		RateLimit: cfg.Backend.RateLimit,
		Burst:     cfg.Backend.Burst,
	})
}

// ProvideSyntheticProducer applies the configured per-indicator overrides.
func ProvideSyntheticProducer(cfg *config.Config) (*synthetic.Producer, error) {
	opts := []synthetic.Option{synthetic.WithSeed(cfg.Synthetic.Seed)}
	for name, o := range cfg.Synthetic.Indicators {
		ind, ok := models.ParseIndicator(name)
		if !ok {
			return nil, fmt.Errorf("synthetic.indicators: unknown indicator %q", name)
		}
		opts = append(opts, synthetic.WithProfile(ind, models.SyntheticProfile{
			Base:       o.Base,
			Volatility: o.Volatility,
			Trend:      o.Trend,
		}))
	}
	return synthetic.New(opts...), nil
}

func ProvideGateway(
	cfg *config.Config,
	gate *validation.Gate,
	cache *svccache.ResultCache,
	policy *retry.Policy,
	r domrepo.Remote,
	synth *synthetic.Producer,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.Gateway {
	return usecase.NewGateway(usecase.GatewayConfig{Demo: cfg.Demo()}, gate, cache, policy, r, synth, m, l)
}

// ProvideNotifier logs every alert and also publishes it when Kafka is on.
func ProvideNotifier(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) domrepo.Notifier {
	fan := notify.Fanout{notify.NewLogNotifier(l)}
	if producer != nil {
		fan = append(fan, internalrepo.NewKafkaAlertNotifier(producer, cfg.Alerts.KafkaTopic))
	}
	return fan
}

func ProvideAlertEvaluator(cfg *config.Config, gate *validation.Gate, n domrepo.Notifier, m domrepo.Metrics, l *applogger.Logger) *usecase.AlertEvaluator {
	return usecase.NewAlertEvaluator(gate, n, m, l, clockwork.NewRealClock(), cfg.Alerts.NotifyTimeout)
}

// ProvideClickHouseClient creates a ClickHouse client with the history
// schema in place, or nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.HistorySchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideHistoryStore returns a nil interface when ClickHouse is disabled,
// so consumers can test for it.
func ProvideHistoryStore(ch *pkgch.Client, l *applogger.Logger) domrepo.HistoryStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseHistory(ch, l)
}

// ProvideDataSource feeds subscriptions from the producer in demo mode and
// from the gateway otherwise.
func ProvideDataSource(cfg *config.Config, gw *usecase.Gateway, synth *synthetic.Producer) domrepo.DataSource {
	if cfg.Demo() {
		return synth
	}
	return gw
}

func ProvideSubscriptionManager(
	cfg *config.Config,
	gate *validation.Gate,
	source domrepo.DataSource,
	alerts *usecase.AlertEvaluator,
	history domrepo.HistoryStore,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.SubscriptionManager {
	return usecase.NewSubscriptionManager(usecase.SubscriptionConfig{
		PollInterval: cfg.Subscriptions.PollInterval,
		FetchTimeout: cfg.Subscriptions.FetchTimeout,
	}, gate, source, alerts, history, m, l, clockwork.NewRealClock())
}

func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	gw *usecase.Gateway,
	alerts *usecase.AlertEvaluator,
	subs *usecase.SubscriptionManager,
	history domrepo.HistoryStore,
	gate *validation.Gate,
) xhttp.Handler {
	return api.NewInsightsEchoHandler(l, gw, alerts, subs, history, gate, api.StreamConfig{
		PingInterval: cfg.Server.StreamPing,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
}

func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithMetrics(cfg.Metrics.Path, reg, reg),
		xhttp.WithLogger(l),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	l *applogger.Logger,
	srv *xhttp.Server,
	subs *usecase.SubscriptionManager,
	alerts *usecase.AlertEvaluator,
	history domrepo.HistoryStore,
	producer *pkgkafka.Producer,
	store pkgcache.Service,
) *server.App {
	return server.New(l, srv, subs, alerts, history, producer, store)
}
