package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/gatehouse-sso/gatehouse/pkg/api"
	"github.com/gatehouse-sso/gatehouse/pkg/audit"
	"github.com/gatehouse-sso/gatehouse/pkg/config"
	"github.com/gatehouse-sso/gatehouse/pkg/identity"
	"github.com/gatehouse-sso/gatehouse/pkg/middleware"
	"github.com/gatehouse-sso/gatehouse/pkg/observability"
	"github.com/gatehouse-sso/gatehouse/pkg/permission"
	"github.com/gatehouse-sso/gatehouse/pkg/session"
	"github.com/gatehouse-sso/gatehouse/pkg/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres backs the token store, session tracker, audit trail, and
	// identity lookups. Without it the service runs on in-memory stores,
	// which only makes sense for local development.
	var db *sql.DB
	if cfg.Storage.PostgresURL != "" {
		db, err = sql.Open("postgres", cfg.Storage.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		db.SetMaxOpenConns(cfg.Storage.PostgresMaxConns)
		db.SetMaxIdleConns(cfg.Storage.PostgresMaxConns / 2)

		pingCtx, pingCancel := context.WithTimeout(ctx, cfg.Storage.PostgresTimeout)
		if err := db.PingContext(pingCtx); err != nil {
			pingCancel()
			log.Fatalf("Failed to ping database: %v", err)
		}
		pingCancel()
		logger.Info("connected to postgres")
	} else {
		logger.Warn("no postgres configured, using in-memory stores")
	}

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			log.Fatalf("Invalid redis URL: %v", err)
		}
		if cfg.Storage.RedisPassword != "" {
			opts.Password = cfg.Storage.RedisPassword
		}
		if cfg.Storage.RedisDB != 0 {
			opts.DB = cfg.Storage.RedisDB
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Browser session caching degrades without redis; bearer
			// requests are unaffected.
			logger.WithError(err).Warn("redis unreachable at startup")
		} else {
			logger.Info("connected to redis")
		}
	}

	store, tracker, err := buildStores(db)
	if err != nil {
		log.Fatalf("Failed to initialize stores: %v", err)
	}

	auditor, err := buildAuditLogger(db, cfg.Audit.FilePath, logger)
	if err != nil {
		log.Fatalf("Failed to initialize audit log: %v", err)
	}

	provider, err := buildIdentityProvider(db, cfg.Identity.Timeout, logger)
	if err != nil {
		log.Fatalf("Failed to initialize identity provider: %v", err)
	}

	manager, err := token.NewManager(token.ManagerOptions{
		Secret:           cfg.Token.Secret,
		Algorithm:        cfg.Token.Algorithm,
		Issuer:           cfg.Token.Issuer,
		AccessTTL:        cfg.Token.AccessTTL,
		RefreshTTL:       cfg.Token.RefreshTTL,
		CleanupRetention: time.Duration(cfg.Token.RetentionDays) * 24 * time.Hour,
	}, store, provider, auditor)
	if err != nil {
		log.Fatalf("Failed to initialize token manager: %v", err)
	}
	manager.AttachSessionTracker(tracker)

	checker := permission.NewChecker()
	if cfg.Enforcement.AppMapFile != "" {
		if err := checker.LoadFile(cfg.Enforcement.AppMapFile); err != nil {
			log.Fatalf("Failed to load application map: %v", err)
		}
	}

	exempt := middleware.NewExemptList(cfg.Enforcement.ExemptPaths)
	if cfg.Enforcement.ExemptPathsFile != "" {
		if err := exempt.Watch(ctx, cfg.Enforcement.ExemptPathsFile, logger); err != nil {
			log.Fatalf("Failed to load exempt path file: %v", err)
		}
	}

	var cache middleware.SessionCache
	var limiter middleware.Limiter
	if redisClient != nil {
		cache = middleware.NewRedisSessionCache(redisClient, cfg.Storage.SessionCacheTTL)
		limiter = middleware.NewDistributedLoginLimiter(redisClient, cfg.Enforcement.LoginRatePerMinute)
	} else {
		cache = middleware.NewMemorySessionCache(cfg.Storage.SessionCacheTTL)
		local := middleware.NewLoginLimiter(cfg.Enforcement.LoginRatePerMinute, cfg.Enforcement.LoginBurst)
		local.StartCleanup(ctx)
		limiter = local
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	var enforcer *middleware.Enforcer
	if cfg.Enforcement.Enabled {
		enforcer = middleware.NewEnforcer(middleware.EnforcerConfig{
			Enabled:     true,
			LoginPath:   cfg.Enforcement.LoginPath,
			CookieName:  cfg.Enforcement.CookieName,
			APIPrefixes: cfg.Enforcement.APIPrefixes,
		}, manager, checker, exempt, cache, tracker, auditor, metrics, logger)
	}

	handlers := api.NewSSOHandlers(manager, provider, checker, tracker, auditor, limiter, metrics, logger)
	handlers.SetIdentityTimeout(cfg.Identity.Timeout)

	server := api.NewServer(cfg, handlers, enforcer, logger)

	healthServer := startHealthServer(cfg, db, redisClient, metrics, logger)

	shutdown := observability.NewShutdownManager(logger, nil, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(server.Shutdown)
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		store.Close()
		tracker.Close()
		cache.Close()
		auditor.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		if db != nil {
			return db.Close()
		}
		return nil
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("server stopped")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		os.Exit(1)
	}
}

// buildStores picks SQL-backed or in-memory token and session stores
func buildStores(db *sql.DB) (token.Store, session.Store, error) {
	if db == nil {
		return token.NewMemoryStore(), session.NewMemoryStore(), nil
	}
	store, err := token.NewSQLStore(db)
	if err != nil {
		return nil, nil, err
	}
	tracker, err := session.NewSQLStore(db)
	if err != nil {
		return nil, nil, err
	}
	return store, tracker, nil
}

// buildAuditLogger composes the configured audit sinks. The database sink
// is authoritative; the file sink is an optional local copy.
func buildAuditLogger(db *sql.DB, filePath string, logger *observability.Logger) (audit.Logger, error) {
	var sinks []audit.Logger

	if db != nil {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dbLogger)
	}

	if filePath != "" {
		fileLogger, err := audit.NewFileLogger(filePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileLogger)
	}

	switch len(sinks) {
	case 0:
		logger.Warn("no audit sink configured, events are kept in memory only")
		return audit.NewMemoryLogger(), nil
	case 1:
		return sinks[0], nil
	default:
		return audit.NewMultiLogger(sinks...), nil
	}
}

// buildIdentityProvider reads principals from the identity schema, or from
// an optional development account when no database is configured.
func buildIdentityProvider(db *sql.DB, timeout time.Duration, logger *observability.Logger) (identity.Provider, error) {
	if db != nil {
		return identity.NewSQLProvider(db, verifyPassword, timeout)
	}

	static := identity.NewStaticProvider()
	username := os.Getenv("GATEHOUSE_DEV_USER")
	password := os.Getenv("GATEHOUSE_DEV_PASSWORD")
	if username != "" && password != "" {
		static.Add(identity.Principal{
			ID:          1,
			Username:    username,
			IsActive:    true,
			IsSuperuser: true,
		}, password, nil)
		logger.WithField("username", username).Warn("development account enabled")
	}
	return static, nil
}

// verifyPassword compares a stored sha256 hex digest against the presented
// password in constant time.
func verifyPassword(stored, presented string) bool {
	digest := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare([]byte(stored), []byte(hex.EncodeToString(digest[:]))) == 1
}

// startHealthServer serves the k8s probes and prometheus metrics on the
// dedicated health port.
func startHealthServer(cfg *config.Config, db *sql.DB, redisClient *redis.Client,
	metrics *observability.Metrics, logger *observability.Logger) *http.Server {
	health := observability.NewHealthChecker(db, redisClient)

	router := mux.NewRouter()
	router.HandleFunc("/health/live", health.Liveness).Methods("GET")
	router.HandleFunc("/health/ready", health.Readiness).Methods("GET")
	if metrics != nil {
		router.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler: router,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server stopped")
		}
	}()

	return server
}
