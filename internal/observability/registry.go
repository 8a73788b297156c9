package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the global
// Prometheus vars directly.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Deployment metrics
	IncrementDeployments(platform, outcome string)
	RecordDeploymentLatency(platform string, duration time.Duration)
	IncrementRuns(status string)

	// Media upload metrics
	IncrementUploadAttempts(platform, outcome string)

	// Media store metrics
	SetTrackedAssets(count int)
	IncrementAssetsDestroyed(reason string)

	// Outbound rate limiting metrics
	IncrementRateLimitRequests(platform string)
	IncrementRateLimitHits(platform string)
}

// PrometheusRegistry implements MetricsRegistry using the package-level
// Prometheus metrics.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementDeployments(platform, outcome string) {
	DeploymentCount.WithLabelValues(platform, outcome).Inc()
}

func (r *PrometheusRegistry) RecordDeploymentLatency(platform string, duration time.Duration) {
	DeploymentLatency.WithLabelValues(platform).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementRuns(status string) {
	RunCount.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementUploadAttempts(platform, outcome string) {
	UploadAttemptCount.WithLabelValues(platform, outcome).Inc()
}

func (r *PrometheusRegistry) SetTrackedAssets(count int) {
	TrackedAssets.Set(float64(count))
}

func (r *PrometheusRegistry) IncrementAssetsDestroyed(reason string) {
	AssetsDestroyed.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitRequests(platform string) {
	RateLimitRequests.WithLabelValues(platform).Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits(platform string) {
	RateLimitHits.WithLabelValues(platform).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementDeployments(platform, outcome string)                        {}
func (r *NoOpRegistry) RecordDeploymentLatency(platform string, duration time.Duration)      {}
func (r *NoOpRegistry) IncrementRuns(status string)                                          {}
func (r *NoOpRegistry) IncrementUploadAttempts(platform, outcome string)                     {}
func (r *NoOpRegistry) SetTrackedAssets(count int)                                           {}
func (r *NoOpRegistry) IncrementAssetsDestroyed(reason string)                               {}
func (r *NoOpRegistry) IncrementRateLimitRequests(platform string)                           {}
func (r *NoOpRegistry) IncrementRateLimitHits(platform string)                               {}
