package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sony/gobreaker/v2"

	"surfmaster/internal/types"
)

// putTimeout bounds PutMetricData for hooks that are not handed a context.
const putTimeout = 2 * time.Second

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch emits each observation as a PutMetricData call in the
// SurfMaster namespace. Failures are logged and otherwise ignored.
//
// Metrics emitted:
//   - RecommendationRun: Dims {Outcome} -- "found" or "empty"
//   - RecommendationLatency: no dims, milliseconds
//   - RetrievalRun / RetrievalFallback: no dims
//   - EmbeddingCacheHit / EmbeddingCacheMiss: Dims {Provider: tier}
//   - ForecastSynced / ForecastSyncFailure: Dims {Provider}
//   - APIRequestCount / APILatency: Dims {Method, Status}
//   - BreakerTransition: Dims {Provider: breaker, Outcome: new state}
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ Recorder = (*CloudWatch)(nil)

// NewCloudWatch creates a CloudWatch recorder.
func NewCloudWatch(client CloudWatchClient, logger *slog.Logger) *CloudWatch {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatch{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func datum(name string, value float64, unit cwtypes.StandardUnit, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Dimensions: dims,
	}
}

func (m *CloudWatch) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to put metric data",
			"error", err.Error(),
			"metric", aws.ToString(data[0].MetricName),
		)
	}
}

func (m *CloudWatch) putDetached(data ...cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()
	m.put(ctx, data...)
}

func (m *CloudWatch) RecordRequest(method, _ string, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{dim(types.DimMethod, method), dim(types.DimStatus, statusClass(status))}
	m.putDetached(
		datum(types.MetricAPIRequestCount, 1, cwtypes.StandardUnitCount, dims...),
		datum(types.MetricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, dims...),
	)
}

func (m *CloudWatch) ObserveRecommendation(ctx context.Context, duration time.Duration, _, returned int) {
	outcome := "found"
	if returned == 0 {
		outcome = "empty"
	}
	m.put(ctx,
		datum(types.MetricRecommendationRun, 1, cwtypes.StandardUnitCount, dim(types.DimOutcome, outcome)),
		datum(types.MetricRecommendationLatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds),
	)
}

func (m *CloudWatch) ObserveRetrieval(ctx context.Context, _ time.Duration, _ int, fallback bool) {
	data := []cwtypes.MetricDatum{datum(types.MetricRetrievalRun, 1, cwtypes.StandardUnitCount)}
	if fallback {
		data = append(data, datum(types.MetricRetrievalFallback, 1, cwtypes.StandardUnitCount))
	}
	m.put(ctx, data...)
}

func (m *CloudWatch) CacheHit(tier string) {
	m.putDetached(datum(types.MetricEmbeddingCacheHit, 1, cwtypes.StandardUnitCount, dim(types.DimProvider, tier)))
}

func (m *CloudWatch) CacheMiss(tier string) {
	m.putDetached(datum(types.MetricEmbeddingCacheMiss, 1, cwtypes.StandardUnitCount, dim(types.DimProvider, tier)))
}

func (m *CloudWatch) ForecastSynced(provider string, saved int) {
	m.putDetached(datum(types.MetricForecastSynced, float64(saved), cwtypes.StandardUnitCount, dim(types.DimProvider, provider)))
}

func (m *CloudWatch) ForecastSyncFailed(provider string) {
	m.putDetached(datum(types.MetricForecastSyncFailure, 1, cwtypes.StandardUnitCount, dim(types.DimProvider, provider)))
}

func (m *CloudWatch) BreakerStateChanged(name string, _, to gobreaker.State) {
	m.putDetached(datum(types.MetricBreakerTransition, 1, cwtypes.StandardUnitCount,
		dim(types.DimProvider, name), dim(types.DimOutcome, to.String())))
}
