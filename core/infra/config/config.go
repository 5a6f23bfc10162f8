package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvironment     = "development"
	defaultRedisURL        = "redis://localhost:6379"
	defaultHTTPAddr        = ":8081"
	defaultMetricsAddr     = ":9092"
	defaultGRPCAddr        = ":8082"
	defaultFilesPrefix     = "/api/v1/files"
	defaultCacheMinutes    = 5
	defaultHealthInterval  = 30 * time.Second
	envEnvironment         = "CUTTY_ENV"
	envRedisURL            = "REDIS_URL"
	envNATSURL             = "NATS_URL"
	envJWTSecret           = "JWT_SECRET"
	envHTTPAddr            = "GATEWAY_HTTP_ADDR"
	envMetricsAddr         = "GATEWAY_METRICS_ADDR"
	envGRPCAddr            = "GATEWAY_GRPC_ADDR"
	envCacheMinutes        = "POLICY_CACHE_MINUTES"
	envDynamicUpdates      = "POLICY_DYNAMIC_UPDATES"
	envFallbackToDefaults  = "POLICY_FALLBACK_DEFAULTS"
	envOverridesPath       = "POLICY_OVERRIDES_PATH"
	envFilesPrefix         = "FILES_PREFIX"
	envHealthProbeInterval = "HEALTH_PROBE_INTERVAL"
)

// Config holds runtime configuration for the security gateway.
type Config struct {
	Environment         string
	RedisURL            string
	NatsURL             string
	JWTSecret           string
	HTTPAddr            string
	MetricsAddr         string
	GRPCAddr            string
	CacheExpiration     time.Duration
	DynamicUpdates      bool
	FallbackToDefaults  bool
	OverridesPath       string
	FilesPrefix         string
	HealthProbeInterval time.Duration
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(envEnvironment)))
	if env == "" {
		env = defaultEnvironment
	}
	cacheMinutes := defaultCacheMinutes
	if raw := strings.TrimSpace(os.Getenv(envCacheMinutes)); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cacheMinutes = parsed
		}
	}
	probe := defaultHealthInterval
	if raw := strings.TrimSpace(os.Getenv(envHealthProbeInterval)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			probe = d
		}
	}

	return &Config{
		Environment:         env,
		RedisURL:            stringEnv(envRedisURL, defaultRedisURL),
		NatsURL:             strings.TrimSpace(os.Getenv(envNATSURL)),
		JWTSecret:           strings.TrimSpace(os.Getenv(envJWTSecret)),
		HTTPAddr:            stringEnv(envHTTPAddr, defaultHTTPAddr),
		MetricsAddr:         stringEnv(envMetricsAddr, defaultMetricsAddr),
		GRPCAddr:            stringEnv(envGRPCAddr, defaultGRPCAddr),
		CacheExpiration:     time.Duration(cacheMinutes) * time.Minute,
		DynamicUpdates:      boolEnv(envDynamicUpdates, true),
		FallbackToDefaults:  boolEnv(envFallbackToDefaults, true),
		OverridesPath:       strings.TrimSpace(os.Getenv(envOverridesPath)),
		FilesPrefix:         stringEnv(envFilesPrefix, defaultFilesPrefix),
		HealthProbeInterval: probe,
	}
}

// IsProduction reports whether error details must be withheld from clients.
func (c *Config) IsProduction() bool {
	return c != nil && c.Environment == "production"
}

func stringEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
