package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/gatehouse-sso/gatehouse/pkg/audit"
	"github.com/gatehouse-sso/gatehouse/pkg/session"
	"github.com/gatehouse-sso/gatehouse/pkg/token"
)

var (
	dbURL              = flag.String("db-url", getEnv("GATEHOUSE_POSTGRES_URL", "postgres://localhost/gatehouse?sslmode=disable"), "PostgreSQL connection URL")
	sweepSchedule      = flag.String("sweep-schedule", "30 0 * * *", "Cron schedule for the nightly sweep (default: 00:30 UTC)")
	tokenRetentionDays = flag.Int("token-retention-days", getEnvInt("GATEHOUSE_TOKEN_RETENTION_DAYS", 7), "Days to keep expired token records")
	auditRetentionDays = flag.Int("audit-retention-days", getEnvInt("GATEHOUSE_AUDIT_RETENTION_DAYS", 90), "Days to keep audit events")
	runOnce            = flag.Bool("run-once", false, "Run one sweep and exit (for testing)")
)

func main() {
	flag.Parse()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	tokens, err := token.NewSQLStore(db)
	if err != nil {
		log.Fatalf("Failed to open token store: %v", err)
	}
	sessions, err := session.NewSQLStore(db)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	events, err := audit.NewDBLogger(db)
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}

	sweep := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		now := time.Now().UTC()

		// Removing an expired record never changes a validation outcome;
		// the signature already rejects the token. This is storage hygiene.
		removed, err := tokens.DeleteExpiredBefore(ctx, now.AddDate(0, 0, -*tokenRetentionDays))
		if err != nil {
			log.Printf("Token sweep failed: %v", err)
			return err
		}
		log.Printf("✓ Removed %d expired token records", removed)

		ended, err := sessions.DeleteEndedBefore(ctx, now.AddDate(0, 0, -*tokenRetentionDays))
		if err != nil {
			log.Printf("Session sweep failed: %v", err)
			return err
		}
		log.Printf("✓ Removed %d ended sessions", ended)

		purged, err := events.Cleanup(ctx, audit.RetentionPolicy{RetentionDays: *auditRetentionDays})
		if err != nil {
			log.Printf("Audit sweep failed: %v", err)
			return err
		}
		log.Printf("✓ Purged %d audit events", purged)

		return nil
	}

	if *runOnce {
		log.Println("Running one sweep")
		if err := sweep(); err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		log.Println("Sweep completed successfully")
		return
	}

	c := cron.New()
	_, err = c.AddFunc(*sweepSchedule, func() {
		log.Println("Starting scheduled sweep")
		if err := sweep(); err != nil {
			log.Printf("Sweep failed: %v", err)
		} else {
			log.Println("Sweep completed successfully")
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule sweep: %v", err)
	}

	c.Start()
	log.Println("Gatehouse sweeper started")
	log.Printf("Sweep schedule: %s", *sweepSchedule)
	log.Printf("Token retention: %d days, audit retention: %d days", *tokenRetentionDays, *auditRetentionDays)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Sweeper stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
