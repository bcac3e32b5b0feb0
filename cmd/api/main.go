package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/cashoffer-funnel/cmd/mainconfig"
	"github.com/wolfman30/cashoffer-funnel/internal/api/router"
	"github.com/wolfman30/cashoffer-funnel/internal/app/bootstrap"
	appconfig "github.com/wolfman30/cashoffer-funnel/internal/config"
	"github.com/wolfman30/cashoffer-funnel/internal/conversion"
	"github.com/wolfman30/cashoffer-funnel/internal/intake"
	"github.com/wolfman30/cashoffer-funnel/internal/leads"
	"github.com/wolfman30/cashoffer-funnel/internal/leadsync"
	"github.com/wolfman30/cashoffer-funnel/internal/ledger"
	"github.com/wolfman30/cashoffer-funnel/internal/observability/metrics"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting cashoffer-funnel API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SyncTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	app.close()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) close() {
	// Reverse order: the gateway drains before the relay it publishes to.
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setupMetrics() (http.Handler, *metrics.LeadMetrics, *metrics.SyncMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewLeadMetrics(reg), metrics.NewSyncMetrics(reg)
}

// setupAWS returns nil clients when neither SQS nor SES is configured.
func setupAWS(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*sqs.Client, *sesv2.Client) {
	if cfg.LeadEventsQueueURL == "" && cfg.SESFromEmail == "" {
		return nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config; queue and SES alerts disabled", "error", err)
		return nil, nil
	}
	var (
		sqsClient *sqs.Client
		sesClient *sesv2.Client
	)
	if cfg.LeadEventsQueueURL != "" {
		sqsClient = mainconfig.NewSQSClient(awsCfg, cfg)
	}
	if cfg.SESFromEmail != "" {
		sesClient = mainconfig.NewSESClient(awsCfg, cfg)
	}
	return sqsClient, sesClient
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	a := &app{}
	identity, err := leads.NewIdentity(cfg.CompletionFields)
	if err != nil {
		return nil, err
	}
	targets := leadsync.ParseTargets(cfg.SyncTargets)
	if len(targets) == 0 {
		return nil, fmt.Errorf("SYNC_TARGETS names no known target: %v", cfg.SyncTargets)
	}
	metricsHandler, leadMetrics, syncMetrics := setupMetrics()

	var redisClient *redis.Client
	if bootstrap.NeedsRedis(cfg) {
		redisClient = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
		if redisClient != nil {
			a.closers = append(a.closers, func() { _ = redisClient.Close() })
		}
	}
	limiters := bootstrap.BuildRateLimiters(cfg, redisClient, logger)
	a.closers = append(a.closers, func() { _ = limiters.Close() })

	var pool *pgxpool.Pool
	if cfg.LedgerBackend == "postgres" {
		pool = bootstrap.ConnectPostgresPool(ctx, cfg.DatabaseURL, logger)
		if pool != nil {
			a.closers = append(a.closers, pool.Close)
		}
	}
	ledgerStore, err := bootstrap.BuildLedgerStore(ctx, cfg, pool, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	crmStore, err := bootstrap.BuildCRM(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	sqsClient, sesClient := setupAWS(ctx, cfg, logger)
	alerts := bootstrap.BuildAlertSender(cfg, sesClient, logger)
	leadRelay := bootstrap.BuildRelay(cfg, sqsClient, alerts, logger)
	a.closers = append(a.closers, leadRelay.Close)

	gateway := leadsync.New(ledgerStore, crmStore, leadsync.Config{
		Targets:        targets,
		Timeout:        cfg.SyncTimeout,
		MaxRetries:     cfg.SyncMaxRetries,
		RetryBaseDelay: cfg.SyncRetryBaseDelay,
		Logger:         logger,
		Metrics:        syncMetrics,
	})
	a.closers = append(a.closers, gateway.Close)

	loader := ledger.NewLoader(ledgerStore)
	service := intake.NewService(loader, gateway, intake.Config{
		Identity:  identity,
		Publisher: leadRelay,
		Metrics:   leadMetrics,
		Logger:    logger,
	})
	tracker := conversion.NewTracker(bootstrap.BuildConversionStore(cfg, redisClient, logger), logger, leadMetrics)

	a.handler = router.New(&router.Config{
		Logger:             logger,
		LeadsHandler:       intake.NewHandler(service, loader, logger),
		ConversionHandler:  conversion.NewHandler(tracker, logger),
		LeadLimiter:        limiters.Leads,
		ConversionLimiter:  limiters.Conversions,
		LeadMetrics:        leadMetrics,
		MetricsHandler:     metricsHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	logger.Info("lead sync configured", "targets", targets, "timeout", cfg.SyncTimeout, "max_retries", cfg.SyncMaxRetries)
	return a, nil
}
