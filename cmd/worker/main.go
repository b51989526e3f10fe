package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/flexprice/invoicer/internal/cache"
	"github.com/flexprice/invoicer/internal/clickhouse"
	"github.com/flexprice/invoicer/internal/config"
	"github.com/flexprice/invoicer/internal/kafka"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/metrics"
	"github.com/flexprice/invoicer/internal/notification"
	"github.com/flexprice/invoicer/internal/postgres"
	"github.com/flexprice/invoicer/internal/pubsub"
	kafkaPubSub "github.com/flexprice/invoicer/internal/pubsub/kafka"
	"github.com/flexprice/invoicer/internal/pubsub/memory"
	pubsubRouter "github.com/flexprice/invoicer/internal/pubsub/router"
	"github.com/flexprice/invoicer/internal/repository"
	"github.com/flexprice/invoicer/internal/sentry"
	"github.com/flexprice/invoicer/internal/service"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// billRunFlags are only read in billrun mode
type billRunFlags struct {
	targetDate string
	enqueue    bool
}

var flags billRunFlags

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	flag.StringVar(&flags.targetDate, "target-date", "", "bill run target date (YYYY-MM-DD), defaults to today")
	flag.BoolVar(&flags.enqueue, "enqueue", false, "publish one invoice run request per account instead of invoicing in process")
	flag.Parse()

	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Monitoring
			sentry.NewSentryService,
			prometheus.NewRegistry,
			metrics.New,

			// Cache
			cache.NewInMemoryCache,

			// Postgres
			postgres.NewDB,
			provideDBClient,

			// Clickhouse
			clickhouse.NewClickHouseStore,

			// PubSub
			providePubSub,
			providePublisher,
			pubsubRouter.NewRouter,
			notification.NewPublisher,

			// Repositories
			repository.NewInvoiceRepository,
			repository.NewBillingEventRepository,
			repository.NewAccountRepository,
			repository.NewUsageRepository,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,
			service.NewInvoiceService,
			service.NewLedgerService,
			service.NewAccountService,
			service.NewIngestService,
			service.NewBillRunService,
			provideInvoiceRunHandler,
		),
	)

	opts = append(opts,
		fx.Invoke(
			sentry.RegisterHooks,
			runMigrations,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideDBClient(db *postgres.DB, sentry *sentry.Service, log *logger.Logger) postgres.IClient {
	return postgres.NewSentryClient(db, sentry, log)
}

func providePubSub(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, error) {
	var (
		ps  pubsub.PubSub
		err error
	)
	switch cfg.Notification.Provider {
	case types.PubSubProviderKafka:
		ps, err = kafkaPubSub.NewPubSub(cfg, log)
		if err != nil {
			return nil, err
		}
	default:
		ps = memory.NewPubSub(log)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return ps.Close()
		},
	})
	return ps, nil
}

func providePublisher(ps pubsub.PubSub) pubsub.Publisher {
	return ps
}

func provideInvoiceRunHandler(invoices service.InvoiceService, sentry *sentry.Service, log *logger.Logger) *notification.InvoiceRunHandler {
	return notification.NewInvoiceRunHandler(invoices, sentry, log)
}

func runMigrations(lc fx.Lifecycle, cfg *config.Configuration, db *postgres.DB, store *clickhouse.ClickHouseStore, log *logger.Logger) {
	if !cfg.Postgres.AutoMigrate {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Running database migrations...")
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			log.Info("Migration completed successfully")
			return nil
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Configuration,
	router *pubsubRouter.Router,
	ps pubsub.PubSub,
	runHandler *notification.InvoiceRunHandler,
	ingestService service.IngestService,
	billRunService service.BillRunService,
	m *metrics.Metrics,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal, types.ModeWorker:
		startMessageRouter(lc, cfg, router, ps, runHandler, ingestService, log)
		startMetricsServer(lc, cfg, m, log)
		if cfg.Notification.Provider == types.PubSubProviderKafka {
			startLagMonitor(lc, cfg, m, log)
		}
	case types.ModeBillRun:
		startBillRun(lc, shutdowner, billRunService, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startMessageRouter(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	router *pubsubRouter.Router,
	ps pubsub.PubSub,
	runHandler *notification.InvoiceRunHandler,
	ingestService service.IngestService,
	log *logger.Logger,
) {
	router.AddNoPublishHandler(
		"invoice_run_handler",
		cfg.BillRun.Topic,
		ps,
		runHandler.Handle,
	)
	ingestService.RegisterHandlers(router, ps)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting message router...")
			go func() {
				if err := router.Run(context.Background()); err != nil {
					log.Errorw("Message router stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down message router...")
			return router.Close()
		},
	})
}

func startMetricsServer(lc fx.Lifecycle, cfg *config.Configuration, m *metrics.Metrics, log *logger.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	srv := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("Starting metrics server...", "address", cfg.Metrics.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorw("Metrics server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// startLagMonitor samples how far the worker trails the invoice_run topic
func startLagMonitor(lc fx.Lifecycle, cfg *config.Configuration, m *metrics.Metrics, log *logger.Logger) {
	interval := cfg.Metrics.LagInterval
	if interval <= 0 {
		return
	}
	monitor := kafka.NewMonitoringService(cfg, log)
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						lag, err := monitor.GetConsumerLag(ctx, cfg.BillRun.Topic, cfg.Kafka.ConsumerGroup)
						if err != nil {
							log.Warnw("failed to read consumer lag", "topic", cfg.BillRun.Topic, "error", err)
							continue
						}
						m.SetConsumerLag(cfg.BillRun.Topic, lag.TotalLag)
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startBillRun(lc fx.Lifecycle, shutdowner fx.Shutdowner, billRunService service.BillRunService, log *logger.Logger) {
	targetDate := types.ToDate(time.Now())
	if flags.targetDate != "" {
		parsed, err := time.Parse(time.DateOnly, flags.targetDate)
		if err != nil {
			log.Fatalf("Invalid target date %q: %v", flags.targetDate, err)
		}
		targetDate = parsed
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer func() {
					if err := shutdowner.Shutdown(); err != nil {
						log.Errorw("Failed to shut down", "error", err)
					}
				}()

				if flags.enqueue {
					n, err := billRunService.Enqueue(ctx, targetDate)
					if err != nil {
						log.Errorw("Bill run enqueue failed", "enqueued", n, "error", err)
					}
					return
				}

				result, err := billRunService.Run(ctx, targetDate)
				if err != nil {
					log.Errorw("Bill run failed", "error", err)
					return
				}
				for accountID, err := range result.Failed {
					log.Errorw("Account not invoiced", "run_id", result.RunID, "account_id", accountID, "error", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
