package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cacheLookups     *prometheus.CounterVec
	remoteCalls      *prometheus.CounterVec
	remoteLatency    *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	ticks            *prometheus.CounterVec
	listenerFailures *prometheus.CounterVec
	alerts           *prometheus.CounterVec
	activeTopics     prometheus.Gauge
}

// New creates a recorder registered on reg. Pass prometheus.DefaultRegisterer
// to expose the series on the default /metrics handler.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climapulse_cache_lookups_total",
				Help: "Result cache lookups by operation kind and outcome",
			},
			[]string{"kind", "result"},
		),
		remoteCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climapulse_remote_calls_total",
				Help: "Calls to the analytics backend",
			},
			[]string{"kind", "result"},
		),
		remoteLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "climapulse_remote_call_duration_seconds",
				Help:    "Duration of analytics backend calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climapulse_retries_total",
				Help: "Backoff rounds scheduled by the retry policy",
			},
			[]string{"kind"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climapulse_fallbacks_total",
				Help: "Requests answered with synthetic fallback data",
			},
			[]string{"kind"},
		),
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climapulse_subscription_ticks_total",
				Help: "Refresh ticks delivered per indicator",
			},
			[]string{"indicator"},
		),
		listenerFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climapulse_listener_failures_total",
				Help: "Listener callbacks that returned an error or panicked",
			},
			[]string{"indicator"},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "climapulse_alerts_triggered_total",
				Help: "Alert rules that triggered",
			},
			[]string{"indicator"},
		),
		activeTopics: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "climapulse_active_topics",
				Help: "Topics with at least one subscriber",
			},
		),
	}
}

func (r *Recorder) RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordRemoteCall(kind string, err error, seconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.remoteCalls.WithLabelValues(kind, result).Inc()
	r.remoteLatency.WithLabelValues(kind).Observe(seconds)
}

func (r *Recorder) RecordRetry(kind string) {
	r.retries.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordFallback(kind string) {
	r.fallbacks.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordTick(indicator string) {
	r.ticks.WithLabelValues(indicator).Inc()
}

func (r *Recorder) RecordListenerFailure(indicator string) {
	r.listenerFailures.WithLabelValues(indicator).Inc()
}

func (r *Recorder) RecordAlert(indicator string) {
	r.alerts.WithLabelValues(indicator).Inc()
}

func (r *Recorder) SetActiveTopics(n int) {
	r.activeTopics.Set(float64(n))
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordCacheLookup(string, bool)         {}
func (Nop) RecordRemoteCall(string, error, float64) {}
func (Nop) RecordRetry(string)                     {}
func (Nop) RecordFallback(string)                  {}
func (Nop) RecordTick(string)                      {}
func (Nop) RecordListenerFailure(string)           {}
func (Nop) RecordAlert(string)                     {}
func (Nop) SetActiveTopics(int)                    {}
