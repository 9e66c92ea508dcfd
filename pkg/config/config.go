package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gatehouse-sso/gatehouse/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Token configuration
	Token TokenConfig

	// Enforcement configuration
	Enforcement EnforcementConfig

	// Storage configuration
	Storage StorageConfig

	// Identity configuration
	Identity IdentityConfig

	// Audit configuration
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

// TokenConfig holds signing and lifetime settings
type TokenConfig struct {
	// Secret is the HMAC signing key. Required.
	Secret string

	// Algorithm is the HMAC variant: HS256, HS384, or HS512
	Algorithm string

	// Issuer is stamped into every token
	Issuer string

	// AccessTTL is the access token lifetime
	AccessTTL time.Duration

	// RefreshTTL is the refresh token lifetime
	RefreshTTL time.Duration

	// RetentionDays is how long expired token records are kept before the
	// cleanup sweep removes them
	RetentionDays int
}

// EnforcementConfig holds the middleware's settings
type EnforcementConfig struct {
	// Enabled turns request enforcement on. When false every request
	// passes through untouched.
	Enabled bool

	// ExemptPaths are path prefixes that skip enforcement
	ExemptPaths []string

	// ExemptPathsFile optionally names a YAML file with additional exempt
	// paths, reloaded when the file changes
	ExemptPathsFile string

	// AppMapFile optionally names a YAML file extending the application
	// to permission-key table
	AppMapFile string

	// LoginPath is where browser requests are redirected on rejection
	LoginPath string

	// CookieName is the token cookie read and cleared by the middleware
	CookieName string

	// APIPrefixes mark paths whose rejections are JSON rather than a
	// redirect
	APIPrefixes []string

	// LoginRatePerMinute bounds credential attempts per client IP
	LoginRatePerMinute int

	// LoginBurst is the rate limiter's burst allowance
	LoginBurst int
}

// StorageConfig holds database and cache settings
type StorageConfig struct {
	PostgresURL      string
	PostgresMaxConns int
	PostgresTimeout  time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int

	// SessionCacheTTL bounds how long a token rides in the server-side
	// session cache
	SessionCacheTTL time.Duration
}

// IdentityConfig holds identity provider settings
type IdentityConfig struct {
	// Timeout bounds every identity provider call
	Timeout time.Duration
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	// RetentionDays is how long audit events are kept
	RetentionDays int

	// FilePath optionally names a directory for an additional NDJSON
	// audit log alongside the database
	FilePath string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// DefaultExemptPaths are the prefixes that never require a token: probes,
// the login surface itself, the SSO API, static assets, and the identity
// provider's admin UI.
var DefaultExemptPaths = []string{
	"/health/",
	"/login",
	"/logout",
	"/sso/",
	"/static/",
	"/media/",
	"/admin/",
	"/favicon.ico",
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Token:         loadTokenConfig(),
		Enforcement:   loadEnforcementConfig(),
		Storage:       loadStorageConfig(),
		Identity:      loadIdentityConfig(),
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
		Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
		Port:            getEnv("GATEHOUSE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATEHOUSE_HEALTH_PORT", "8081"),
	}
}

// loadTokenConfig loads token configuration from environment
func loadTokenConfig() TokenConfig {
	return TokenConfig{
		Secret:        getEnv("GATEHOUSE_SECRET", ""),
		Algorithm:     getEnv("GATEHOUSE_ALGORITHM", "HS256"),
		Issuer:        getEnv("GATEHOUSE_ISSUER", "gatehouse"),
		AccessTTL:     getEnvSeconds("GATEHOUSE_ACCESS_TTL", 3600),
		RefreshTTL:    getEnvSeconds("GATEHOUSE_REFRESH_TTL", 86400),
		RetentionDays: getEnvInt("GATEHOUSE_TOKEN_RETENTION_DAYS", 7),
	}
}

// loadEnforcementConfig loads enforcement configuration from environment
func loadEnforcementConfig() EnforcementConfig {
	exempt := DefaultExemptPaths
	if raw := getEnv("GATEHOUSE_EXEMPT_PATHS", ""); raw != "" {
		exempt = splitAndTrim(raw)
	}

	apiPrefixes := []string{"/api/", "/sso/"}
	if raw := getEnv("GATEHOUSE_API_PREFIXES", ""); raw != "" {
		apiPrefixes = splitAndTrim(raw)
	}

	return EnforcementConfig{
		Enabled:            getEnvBool("GATEHOUSE_ENFORCEMENT_ENABLED", true),
		ExemptPaths:        exempt,
		ExemptPathsFile:    getEnv("GATEHOUSE_EXEMPT_PATHS_FILE", ""),
		AppMapFile:         getEnv("GATEHOUSE_APP_MAP_FILE", ""),
		LoginPath:          getEnv("GATEHOUSE_LOGIN_PATH", "/login"),
		CookieName:         getEnv("GATEHOUSE_COOKIE_NAME", "sso_token"),
		APIPrefixes:        apiPrefixes,
		LoginRatePerMinute: getEnvInt("GATEHOUSE_LOGIN_RATE_PER_MINUTE", 10),
		LoginBurst:         getEnvInt("GATEHOUSE_LOGIN_BURST", 5),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		PostgresURL:      getEnv("GATEHOUSE_POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", 20),
		PostgresTimeout:  getEnvDuration("GATEHOUSE_POSTGRES_TIMEOUT", 5*time.Second),
		RedisURL:         getEnv("GATEHOUSE_REDIS_URL", ""),
		RedisPassword:    getEnv("GATEHOUSE_REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("GATEHOUSE_REDIS_DB", 0),
		SessionCacheTTL:  getEnvDuration("GATEHOUSE_SESSION_CACHE_TTL", time.Hour),
	}
}

// loadIdentityConfig loads identity provider configuration from environment
func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		Timeout: getEnvDuration("GATEHOUSE_IDENTITY_TIMEOUT", 5*time.Second),
	}
}

// loadAuditConfig loads audit configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		RetentionDays: getEnvInt("GATEHOUSE_AUDIT_RETENTION_DAYS", 90),
		FilePath:      getEnv("GATEHOUSE_AUDIT_FILE_PATH", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("GATEHOUSE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("GATEHOUSE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Token.Secret == "" {
		return fmt.Errorf("GATEHOUSE_SECRET is required")
	}
	switch c.Token.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("invalid signing algorithm: %s (must be HS256, HS384, or HS512)", c.Token.Algorithm)
	}
	if c.Token.AccessTTL <= 0 {
		return fmt.Errorf("access token lifetime must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return fmt.Errorf("refresh token lifetime must exceed the access token lifetime")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Enforcement.Enabled && c.Enforcement.LoginPath == "" {
		return fmt.Errorf("login path is required when enforcement is enabled")
	}
	if c.Enforcement.LoginRatePerMinute <= 0 {
		return fmt.Errorf("login rate limit must be positive")
	}

	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}

	return nil
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

// splitAndTrim splits a comma-separated list, dropping empty entries
func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvSeconds returns a duration from an environment variable holding a
// whole number of seconds, or a default.
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
