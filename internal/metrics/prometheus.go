package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
)

// Prometheus holds the collectors for one registry. Collectors are created
// against that registry rather than the global default so tests can build
// independent instances.
type Prometheus struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec

	recommendationDuration   prometheus.Histogram
	recommendationCandidates prometheus.Histogram
	recommendationReturned   prometheus.Histogram

	retrievalDuration prometheus.Histogram
	retrievalRuns     *prometheus.CounterVec

	cacheLookups *prometheus.CounterVec

	forecastSaved    *prometheus.CounterVec
	forecastFailures *prometheus.CounterVec

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus registers collectors on reg. A nil reg gets a fresh registry
// that also carries the Go runtime and process collectors.
func NewPrometheus(reg *prometheus.Registry) *Prometheus {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,

		apiRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surfmaster_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		apiDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "surfmaster_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "endpoint"},
		),

		recommendationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "surfmaster_recommendation_duration_seconds",
			Help:    "Duration of recommendation runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		recommendationCandidates: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "surfmaster_recommendation_candidates",
			Help:    "Number of forecast windows scored per recommendation run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		recommendationReturned: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "surfmaster_recommendation_returned",
			Help:    "Number of recommendations returned per run",
			Buckets: prometheus.LinearBuckets(0, 5, 11),
		}),

		retrievalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "surfmaster_rag_retrieval_duration_seconds",
			Help:    "Duration of context retrievals in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		retrievalRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surfmaster_rag_retrievals_total",
				Help: "Total number of context retrievals by outcome",
			},
			[]string{"outcome"}, // "semantic", "fallback"
		),

		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surfmaster_embedding_cache_lookups_total",
				Help: "Embedding cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),

		forecastSaved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surfmaster_forecast_samples_saved_total",
				Help: "Forecast samples written by the sync job",
			},
			[]string{"provider"},
		),
		forecastFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surfmaster_forecast_sync_failures_total",
				Help: "Spots whose forecast fetch failed",
			},
			[]string{"provider"},
		),

		breakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "surfmaster_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		breakerTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surfmaster_circuit_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"name", "to"},
		),
	}
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) RecordRequest(method, endpoint, status string, duration time.Duration) {
	p.apiRequests.WithLabelValues(method, endpoint, status).Inc()
	p.apiDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (p *Prometheus) ObserveRecommendation(_ context.Context, duration time.Duration, candidates, returned int) {
	p.recommendationDuration.Observe(duration.Seconds())
	p.recommendationCandidates.Observe(float64(candidates))
	p.recommendationReturned.Observe(float64(returned))
}

func (p *Prometheus) ObserveRetrieval(_ context.Context, duration time.Duration, _ int, fallback bool) {
	p.retrievalDuration.Observe(duration.Seconds())
	p.retrievalRuns.WithLabelValues(retrievalOutcome(fallback)).Inc()
}

func (p *Prometheus) CacheHit(tier string) {
	p.cacheLookups.WithLabelValues(tier, "hit").Inc()
}

func (p *Prometheus) CacheMiss(tier string) {
	p.cacheLookups.WithLabelValues(tier, "miss").Inc()
}

func (p *Prometheus) ForecastSynced(provider string, saved int) {
	p.forecastSaved.WithLabelValues(provider).Add(float64(saved))
}

func (p *Prometheus) ForecastSyncFailed(provider string) {
	p.forecastFailures.WithLabelValues(provider).Inc()
}

func (p *Prometheus) BreakerStateChanged(name string, _, to gobreaker.State) {
	p.breakerState.WithLabelValues(name).Set(breakerStateValue(to))
	p.breakerTransitions.WithLabelValues(name, to.String()).Inc()
}

func retrievalOutcome(fallback bool) string {
	if fallback {
		return "fallback"
	}
	return "semantic"
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// statusClass collapses a status code to "2xx", "4xx", and so on.
func statusClass(status string) string {
	code, err := strconv.Atoi(status)
	if err != nil || code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
