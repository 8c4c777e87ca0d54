package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prohmpiriya/showtime-ledger/internal/di"
	"github.com/prohmpiriya/showtime-ledger/internal/metrics"
	"github.com/prohmpiriya/showtime-ledger/pkg/config"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "expiry-sweeper",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Expiry Sweeper...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "expiry-sweeper",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Telemetry init failed, continuing without export", zap.Error(err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn("Metrics init failed", zap.Error(err))
	}

	// Initialize database connection
	db, err := di.NewDatabase(ctx, cfg, 10, 2)
	if err != nil {
		appLog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize Redis connection for the sweep lock
	redisClient, err := di.NewRedis(ctx, cfg)
	if err != nil {
		appLog.Warn("Redis connection failed, sweeping without a lock", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
		appLog.Info("Redis connected")
	}

	gw, err := di.NewGateway(cfg)
	if err != nil {
		appLog.Fatal("Payment gateway init failed", zap.Error(err))
	}
	notifier := di.NewNotifier(ctx, cfg)
	defer func() {
		if err := notifier.Close(); err != nil {
			appLog.Warn("Notifier close failed", zap.Error(err))
		}
	}()

	container, err := di.NewPostgresContainer(&di.ContainerConfig{
		Config:   cfg,
		DB:       db,
		Redis:    redisClient,
		Gateway:  gw,
		Verifier: di.NewWebhookVerifier(cfg, gw),
		Notifier: notifier,
	})
	if err != nil {
		appLog.Fatal("Failed to build container", zap.Error(err))
	}
	sweeper := container.ExpiryWorker

	if *once {
		result := sweeper.Sweep(ctx)
		appLog.Info("Sweep complete",
			zap.Int("scanned", result.Scanned),
			zap.Int("expired", result.Expired),
			zap.Int("confirmed", result.Confirmed),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
			zap.Bool("lock_busy", result.LockBusy),
		)
		return
	}

	go func() {
		for err := range sweeper.Errors() {
			appLog.Error("Sweep error", zap.Error(err))
		}
	}()

	if err := sweeper.Start(ctx); err != nil {
		appLog.Fatal("Failed to start expiry sweeper", zap.Error(err))
	}
	appLog.Info("Expiry Sweeper started", zap.Duration("interval", cfg.Sweeper.Interval))

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down sweeper...")
	sweeper.Stop()

	stats := sweeper.Stats()
	appLog.Info("Sweeper exited gracefully",
		zap.Int64("sweeps", stats.TotalSweeps),
		zap.Int64("expired", stats.TotalExpired),
		zap.Int64("confirmed", stats.TotalConfirmed),
	)
	if err := telemetry.Shutdown(context.Background()); err != nil {
		appLog.Warn("Telemetry shutdown failed", zap.Error(err))
	}
}
