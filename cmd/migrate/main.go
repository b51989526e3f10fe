package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/flexprice/invoicer/internal/clickhouse"
	"github.com/flexprice/invoicer/internal/config"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/postgres"
	"github.com/flexprice/invoicer/internal/sentry"
)

func main() {
	// Parse command line flags
	dryRun := flag.Bool("dry-run", false, "Print migration SQL without executing it")
	skipClickHouse := flag.Bool("skip-clickhouse", false, "Only migrate postgres")
	flag.Parse()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if *dryRun {
		logger.Info("Dry run mode - printing migration SQL without executing")
		pgMigrations, err := postgres.Migrations()
		if err != nil {
			logger.Fatalw("Failed to load postgres migrations", "error", err)
		}
		for _, m := range pgMigrations {
			fmt.Printf("-- postgres: %s\n%s\n", m.Name, m.SQL)
		}
		if !*skipClickHouse {
			bodies, files, err := clickhouse.Migrations()
			if err != nil {
				logger.Fatalw("Failed to load clickhouse migrations", "error", err)
			}
			for _, name := range files {
				fmt.Printf("-- clickhouse: %s\n%s\n", name, bodies[name])
			}
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.Migrate(ctx); err != nil {
		logger.Fatalw("Failed to migrate postgres", "error", err)
	}

	if !*skipClickHouse {
		store, err := clickhouse.NewClickHouseStore(cfg, sentry.NewSentryService(cfg, logger))
		if err != nil {
			logger.Fatalw("Failed to connect to clickhouse", "error", err)
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			logger.Fatalw("Failed to migrate clickhouse", "error", err)
		}
	}

	logger.Info("Migration completed successfully")
}
