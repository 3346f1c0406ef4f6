// Package metrics records service telemetry. Two backends implement the same
// Recorder: Prometheus for scraping from the API process, and CloudWatch for
// Lambda workers that do not live long enough to be scraped.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Backend names accepted by New.
const (
	BackendPrometheus = "prometheus"
	BackendCloudWatch = "cloudwatch"
	BackendNone       = "none"
)

// Recorder is the union of the telemetry hooks used across the service.
type Recorder interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
	ObserveRecommendation(ctx context.Context, duration time.Duration, candidates, returned int)
	ObserveRetrieval(ctx context.Context, duration time.Duration, returned int, fallback bool)
	CacheHit(tier string)
	CacheMiss(tier string)
	ForecastSynced(provider string, saved int)
	ForecastSyncFailed(provider string)
	BreakerStateChanged(name string, from, to gobreaker.State)
}

// New returns the Recorder for backend. An unknown or empty backend yields
// Nop. cw is only consulted for the CloudWatch backend.
func New(backend string, cw CloudWatchClient, logger *slog.Logger) Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	switch backend {
	case BackendPrometheus:
		return NewPrometheus(nil)
	case BackendCloudWatch:
		if cw == nil {
			logger.Warn("cloudwatch metrics requested without a client, disabling metrics")
			return Nop{}
		}
		return NewCloudWatch(cw, logger)
	default:
		return Nop{}
	}
}

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordRequest(string, string, string, time.Duration)            {}
func (Nop) ObserveRecommendation(context.Context, time.Duration, int, int) {}
func (Nop) ObserveRetrieval(context.Context, time.Duration, int, bool)     {}
func (Nop) CacheHit(string)                                                {}
func (Nop) CacheMiss(string)                                               {}
func (Nop) ForecastSynced(string, int)                                     {}
func (Nop) ForecastSyncFailed(string)                                      {}
func (Nop) BreakerStateChanged(string, gobreaker.State, gobreaker.State)   {}
