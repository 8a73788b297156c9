package ratelimit

import (
	"fmt"
	"sync"

	"github.com/adlaunch/adlaunch/internal/models"
	"github.com/adlaunch/adlaunch/internal/observability"
)

// PlatformLimiter manages rate limiting for outbound calls to multiple
// advertising platforms.
//
// Each platform gets its own token bucket, created lazily on first
// access. The limiter reports activity through an injected metrics
// registry.
type PlatformLimiter struct {
	buckets map[models.Platform]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
}

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// NewPlatformLimiter creates a platform rate limiter with the given configuration.
func NewPlatformLimiter(config Config, metrics observability.MetricsRegistry) *PlatformLimiter {
	return &PlatformLimiter{
		buckets: make(map[models.Platform]*TokenBucket),
		config:  config,
		metrics: metrics,
	}
}

// Allow checks whether an outbound call to the given platform should
// proceed. If rate limiting is disabled via config it always returns
// true. Buckets are created on demand per platform.
func (pl *PlatformLimiter) Allow(platform models.Platform) bool {
	if !pl.config.Enabled {
		return true
	}

	pl.metrics.IncrementRateLimitRequests(string(platform))

	pl.mu.RLock()
	bucket, exists := pl.buckets[platform]
	pl.mu.RUnlock()

	if !exists {
		// Double-checked locking pattern to avoid race conditions
		pl.mu.Lock()
		bucket, exists = pl.buckets[platform]
		if !exists {
			bucket = NewTokenBucket(pl.config.Capacity, pl.config.RefillRate)
			pl.buckets[platform] = bucket
		}
		pl.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		pl.metrics.IncrementRateLimitHits(string(platform))
	}

	return allowed
}

// Stats contains rate limiting statistics for a single platform.
type Stats struct {
	Platform models.Platform `json:"platform"`
	Hits     int64           `json:"hits"`
	Total    int64           `json:"total"`
	HitRate  float64         `json:"hit_rate"`
}

// String returns a human-readable representation of the statistics.
func (s Stats) String() string {
	return fmt.Sprintf("%s: %d/%d hits (%.2f%%)", s.Platform, s.Hits, s.Total, s.HitRate*100)
}

// GetStats returns a snapshot of rate limiting statistics for all platforms.
func (pl *PlatformLimiter) GetStats() map[models.Platform]Stats {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	stats := make(map[models.Platform]Stats)
	for platform, bucket := range pl.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[platform] = Stats{
			Platform: platform,
			Hits:     hits,
			Total:    total,
			HitRate:  hitRate,
		}
	}

	return stats
}
