package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total API requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adlaunch_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adlaunch_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// per-platform deployment outcomes
	DeploymentCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adlaunch_deployments_total",
			Help: "Total platform deployment attempts by outcome",
		},
		[]string{"platform", "outcome"},
	)

	// end-to-end adapter latency per platform
	DeploymentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adlaunch_deployment_duration_seconds",
			Help:    "Histogram of per-platform deployment latencies",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"platform"},
	)

	// orchestration runs by overall status
	RunCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adlaunch_runs_total",
			Help: "Total deployment runs by overall status",
		},
		[]string{"status"},
	)

	// media upload attempts per platform and outcome
	UploadAttemptCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adlaunch_upload_attempts_total",
			Help: "Total media upload attempts by outcome",
		},
		[]string{"platform", "outcome"},
	)

	// media assets currently tracked by the secure store
	TrackedAssets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "adlaunch_media_assets_tracked",
			Help: "Media assets currently held by the temp file store",
		},
	)

	// destroyed media assets by trigger
	AssetsDestroyed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adlaunch_media_assets_destroyed_total",
			Help: "Media assets destroyed, by trigger",
		},
		[]string{"reason"},
	)

	// outbound rate limit checks per platform
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adlaunch_ratelimit_requests_total",
			Help: "Total outbound rate limit checks per platform",
		},
		[]string{"platform"},
	)

	// outbound rate limit rejections per platform
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adlaunch_ratelimit_hits_total",
			Help: "Total outbound rate limit rejections per platform",
		},
		[]string{"platform"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		DeploymentCount,
		DeploymentLatency,
		RunCount,
		UploadAttemptCount,
		TrackedAssets,
		AssetsDestroyed,
		RateLimitRequests,
		RateLimitHits,
	)
}
