package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fableworks/collab/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Owner authentication configuration
	Auth AuthConfig

	// Guest rate limiting configuration
	RateLimit RateLimitConfig

	// Audit trail configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration. Redis backs the distributed
// rate limiter and the participant registry; when Addr is empty both
// fall back to in-process implementations.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// AuthConfig holds owner authentication settings. Either OIDC or a
// static dev token map must be configured; OIDC wins when both are set.
type AuthConfig struct {
	OIDCIssuer   string
	OIDCClientID string

	// DevTokens maps bearer tokens to owner ids, parsed from
	// "token=owner,token=owner". Local development only.
	DevTokens map[string]string
}

// RateLimitConfig holds guest rate limiting settings
type RateLimitConfig struct {
	GuestPerMinute      int
	GuestBurst          int
	ValidationPerMinute int
	ValidationBurst     int
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled bool

	// Retention is how long audit rows are kept; the cleanup sweep runs
	// on CleanupSchedule (standard cron syntax).
	Retention       time.Duration
	CleanupSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// OTel maps the observability section onto the init config.
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		RateLimit:     loadRateLimitConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("COLLAB_HOST", "0.0.0.0"),
		Port:            getEnv("COLLAB_PORT", "8080"),
		ReadTimeout:     getEnvDuration("COLLAB_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("COLLAB_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("COLLAB_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("COLLAB_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("COLLAB_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("COLLAB_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("COLLAB_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("COLLAB_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("COLLAB_POSTGRES_CONN_LIFETIME", 5*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       getEnv("COLLAB_REDIS_ADDR", ""),
		Password:   getEnv("COLLAB_REDIS_PASSWORD", ""),
		DB:         getEnvInt("COLLAB_REDIS_DB", 0),
		PoolSize:   getEnvInt("COLLAB_REDIS_POOL_SIZE", 10),
		MaxRetries: getEnvInt("COLLAB_REDIS_MAX_RETRIES", 3),
	}
}

// loadAuthConfig loads owner authentication configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		OIDCIssuer:   getEnv("COLLAB_OIDC_ISSUER", ""),
		OIDCClientID: getEnv("COLLAB_OIDC_CLIENT_ID", ""),
		DevTokens:    parseDevTokens(getEnv("COLLAB_DEV_TOKENS", "")),
	}
}

// loadRateLimitConfig loads rate limiting configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		GuestPerMinute:      getEnvInt("COLLAB_GUEST_RATE_PER_MINUTE", 120),
		GuestBurst:          getEnvInt("COLLAB_GUEST_RATE_BURST", 20),
		ValidationPerMinute: getEnvInt("COLLAB_VALIDATION_RATE_PER_MINUTE", 20),
		ValidationBurst:     getEnvInt("COLLAB_VALIDATION_RATE_BURST", 5),
	}
}

// loadAuditConfig loads audit configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:         getEnvBool("COLLAB_AUDIT_ENABLED", true),
		Retention:       getEnvDuration("COLLAB_AUDIT_RETENTION", 90*24*time.Hour),
		CleanupSchedule: getEnv("COLLAB_AUDIT_CLEANUP_SCHEDULE", "0 3 * * *"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("COLLAB_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("COLLAB_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("COLLAB_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("COLLAB_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("COLLAB_OTEL_SERVICE_NAME", "collab-authority"),
		OTelServiceVersion: getEnv("COLLAB_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("COLLAB_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Auth.OIDCIssuer == "" && len(c.Auth.DevTokens) == 0 {
		return fmt.Errorf("owner authentication requires an OIDC issuer or dev tokens")
	}
	if c.Auth.OIDCIssuer != "" && c.Auth.OIDCClientID == "" {
		return fmt.Errorf("OIDC client id is required when an issuer is set")
	}

	if c.RateLimit.GuestPerMinute <= 0 || c.RateLimit.ValidationPerMinute <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}

	if c.Audit.Enabled && c.Audit.Retention <= 0 {
		return fmt.Errorf("audit retention must be positive when auditing is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseDevTokens parses "token=owner,token=owner" into a lookup map.
// Malformed entries are skipped.
func parseDevTokens(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		token, owner, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || token == "" || owner == "" {
			continue
		}
		tokens[token] = owner
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
