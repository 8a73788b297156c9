package models

// Platform identifies a supported advertising platform. Each value has
// a matching adapter implementation in internal/platform.
type Platform string

const (
	// PlatformMeta is the Meta (Facebook/Instagram) Marketing API.
	PlatformMeta Platform = "meta"
	// PlatformTikTok is the TikTok Business API.
	PlatformTikTok Platform = "tiktok"
	// PlatformGoogle is the Google Ads API.
	PlatformGoogle Platform = "google"
)

// AllPlatforms returns every platform this service can deploy to, in a
// stable order.
func AllPlatforms() []Platform {
	return []Platform{PlatformMeta, PlatformTikTok, PlatformGoogle}
}

// Valid reports whether p names a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformMeta, PlatformTikTok, PlatformGoogle:
		return true
	}
	return false
}

// Default per-platform minimum daily budgets in minor currency units
// (cents). Platforms reject ad sets funded below these floors, so the
// allocator drops platforms rather than submitting a doomed request.
// Overridable via the platform_settings table.
var DefaultMinDailyBudget = map[Platform]int64{
	PlatformMeta:   100, // $1.00/day, Meta ad set floor
	PlatformTikTok: 2000,
	PlatformGoogle: 100,
}
