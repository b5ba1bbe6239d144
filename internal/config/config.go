package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled     bool
	Brokers     string
	Topic       string
	GroupID     string
	MinInterval time.Duration
}

type Config struct {
	Addr     string
	LogLevel string

	MongoURI           string
	MongoDB            string
	EventsCollection   string
	RequestsCollection string

	CacheBackend   string // "memory" or "redis"
	RedisAddr      string
	CacheOpTimeout time.Duration
	CacheMaxAge    time.Duration
	TTLRecent      time.Duration
	TTLHistorical  time.Duration
	RecentLookback time.Duration

	SourceTimeout time.Duration
	EventShare    float64
	OverFetch     int

	DefaultLimit int
	MaxLimit     int

	FallbackFetchLimit  int
	FallbackCap         int
	FallbackMinSeverity int

	MetricsEnabled bool
	MetricsAddr    string
	MetricsPath    string

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	return Config{
		Addr:     getenv("ADDR", ":8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		MongoURI:           getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:            getenv("MONGO_DB", "citypulse"),
		EventsCollection:   getenv("MONGO_EVENTS_COLLECTION", "events"),
		RequestsCollection: getenv("MONGO_REQUESTS_COLLECTION", "service_requests"),

		CacheBackend:   strings.ToLower(getenv("CACHE_BACKEND", "memory")),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheMaxAge:    getduration("CACHE_MAX_AGE", time.Hour),
		TTLRecent:      getduration("CACHE_TTL_RECENT", time.Hour),
		TTLHistorical:  getduration("CACHE_TTL_HISTORICAL", 24*time.Hour),
		RecentLookback: getduration("RECENT_LOOKBACK", 7*24*time.Hour),

		SourceTimeout: getduration("SOURCE_TIMEOUT", 30*time.Second),
		EventShare:    getfloat("EVENT_SHARE", 0.3),
		OverFetch:     getint("OVER_FETCH", 2),

		DefaultLimit: getint("DEFAULT_LIMIT", 500),
		MaxLimit:     getint("MAX_LIMIT", 50000),

		FallbackFetchLimit:  getint("FALLBACK_FETCH_LIMIT", 2000),
		FallbackCap:         getint("FALLBACK_CAP", 100),
		FallbackMinSeverity: getint("FALLBACK_MIN_SEVERITY", 7),

		MetricsEnabled: getbool("METRICS_ENABLED", false),
		MetricsAddr:    getenv("METRICS_ADDR", ":9090"),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),

		Invalidation: InvalidationCfg{
			Enabled:     getbool("INVALIDATION_ENABLED", false),
			Brokers:     getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:       getenv("KAFKA_TOPIC", "alert-ingest"),
			GroupID:     getenv("KAFKA_GROUP_ID", "alert-cache-invalidator"),
			MinInterval: getduration("INVALIDATION_MIN_INTERVAL", 30*time.Second),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
