package types

// Telemetry metric names shared by the Prometheus and CloudWatch emitters.
const (
	MetricRecommendationRun     = "RecommendationRun"
	MetricRecommendationLatency = "RecommendationLatency"
	MetricRetrievalRun          = "RetrievalRun"
	MetricRetrievalFallback     = "RetrievalFallback"
	MetricEmbeddingCacheHit     = "EmbeddingCacheHit"
	MetricEmbeddingCacheMiss    = "EmbeddingCacheMiss"
	MetricForecastSynced        = "ForecastSynced"
	MetricForecastSyncFailure   = "ForecastSyncFailure"

	DimProvider = "Provider"
	DimOutcome  = "Outcome"

	MetricNamespace = "SurfMaster"
)

// API and dependency health metrics.
const (
	MetricAPIRequestCount   = "APIRequestCount"
	MetricAPILatency        = "APILatency"
	MetricBreakerTransition = "BreakerTransition"

	DimMethod = "Method"
	DimStatus = "Status"
)
