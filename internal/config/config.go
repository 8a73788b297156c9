package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string

	// Media store configuration
	MediaDir       string
	MediaSecret    string
	MediaTTL       time.Duration
	SweepInterval  time.Duration
	MaxUploadBytes int64

	// Deployment configuration
	AdapterTimeout time.Duration
	DefaultCountry string

	// Platform API endpoints. Overridable for staging/sandbox tenants.
	MetaBaseURL          string
	MetaAPIVersion       string
	TikTokBaseURL        string
	GoogleBaseURL        string
	GoogleDeveloperToken string

	// Outbound rate limiting per platform
	RateLimitEnabled    bool
	RateLimitCapacity   int
	RateLimitRefillRate int

	// Optional backing services. Empty values disable the integration.
	RedisAddr     string
	PostgresDSN   string
	ClickHouseDSN string

	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8788")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 30*time.Second)
	// video ingestion can be slow on large files
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 3*time.Minute)
	cfg.ServiceName = getenv("SERVICE_NAME", "adlaunch")

	cfg.MediaDir = getenv("MEDIA_DIR", os.TempDir()+"/adlaunch-media")
	cfg.MediaSecret = getenv("MEDIA_SECRET", "")
	cfg.MediaTTL = envDuration("MEDIA_TTL", time.Hour)
	cfg.SweepInterval = envDuration("MEDIA_SWEEP_INTERVAL", 5*time.Minute)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", 512<<20)

	cfg.AdapterTimeout = envDuration("ADAPTER_TIMEOUT", 120*time.Second)
	cfg.DefaultCountry = getenv("DEFAULT_COUNTRY", "US")

	cfg.MetaBaseURL = getenv("META_BASE_URL", "https://graph.facebook.com")
	cfg.MetaAPIVersion = getenv("META_API_VERSION", "v19.0")
	cfg.TikTokBaseURL = getenv("TIKTOK_BASE_URL", "https://business-api.tiktok.com")
	cfg.GoogleBaseURL = getenv("GOOGLE_BASE_URL", "https://googleads.googleapis.com")
	cfg.GoogleDeveloperToken = getenv("GOOGLE_DEVELOPER_TOKEN", "")

	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitCapacity = envInt("RATE_LIMIT_CAPACITY", 20)
	cfg.RateLimitRefillRate = envInt("RATE_LIMIT_REFILL_RATE", 5)

	cfg.RedisAddr = getenv("REDIS_ADDR", "")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "")

	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envInt64 parses a 64-bit integer environment variable. When unset or invalid, def is returned.
func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
