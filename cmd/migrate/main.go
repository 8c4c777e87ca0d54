package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/di"
	"github.com/prohmpiriya/showtime-ledger/migrations"
	"github.com/prohmpiriya/showtime-ledger/pkg/config"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	list := flag.Bool("list", false, "print embedded migrations and exit")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall migration timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "migrate",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLog := logger.Get()

	if *list {
		names, err := migrations.Names()
		if err != nil {
			appLog.Fatal("Failed to read migrations", zap.Error(err))
		}
		for _, name := range names {
			appLog.Info("migration", zap.String("name", name))
		}
		return
	}

	if err := cfg.ValidateDatabase(); err != nil {
		appLog.Fatal("Invalid database config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := di.NewDatabase(ctx, cfg, 2, 1)
	if err != nil {
		appLog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	applied, err := migrations.Apply(ctx, db.Pool())
	if err != nil {
		appLog.Fatal("Migration failed", zap.Strings("applied", applied), zap.Error(err))
	}
	if len(applied) == 0 {
		appLog.Info("Schema up to date")
		return
	}
	appLog.Info("Migrations applied", zap.Strings("applied", applied))
}
