// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for everything except the signing secret, which is required.
//
// # Configuration Structure
//
// Server settings:
//
//	GATEHOUSE_HOST="0.0.0.0"
//	GATEHOUSE_PORT="8080"
//	GATEHOUSE_HEALTH_PORT="8081"
//	GATEHOUSE_READ_TIMEOUT="15s"
//	GATEHOUSE_WRITE_TIMEOUT="15s"
//
// Token settings:
//
//	GATEHOUSE_SECRET="..."            # required, HMAC signing key
//	GATEHOUSE_ALGORITHM="HS256"       # HS256, HS384, HS512
//	GATEHOUSE_ACCESS_TTL="3600"       # seconds
//	GATEHOUSE_REFRESH_TTL="86400"     # seconds
//	GATEHOUSE_TOKEN_RETENTION_DAYS="7"
//
// Enforcement settings:
//
//	GATEHOUSE_ENFORCEMENT_ENABLED="true"
//	GATEHOUSE_EXEMPT_PATHS="/health/,/login,/sso/,/static/,/media/,/admin/"
//	GATEHOUSE_EXEMPT_PATHS_FILE="/etc/gatehouse/exempt.yaml"  # optional, hot-reloaded
//	GATEHOUSE_LOGIN_PATH="/login"
//	GATEHOUSE_COOKIE_NAME="sso_token"
//
// Storage settings:
//
//	GATEHOUSE_POSTGRES_URL="postgres://localhost/gatehouse"
//	GATEHOUSE_POSTGRES_MAX_CONNS="20"
//	GATEHOUSE_REDIS_URL="redis://localhost:6379"
//	GATEHOUSE_REDIS_PASSWORD=""
//	GATEHOUSE_REDIS_DB="0"
//
// Observability settings:
//
//	GATEHOUSE_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEHOUSE_METRICS_ENABLED="true"
//	GATEHOUSE_AUDIT_RETENTION_DAYS="90"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Enforcement: %v\n", cfg.Enforcement.Enabled)
//
// # Related Packages
//
//   - pkg/token: Uses token signing configuration
//   - pkg/middleware: Uses enforcement configuration
//   - pkg/observability: Uses observability configuration
package config
