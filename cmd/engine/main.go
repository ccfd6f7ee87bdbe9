package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forex-trading-bot-go/internal/alerts"
	"forex-trading-bot-go/internal/config"
	"forex-trading-bot-go/internal/database"
	"forex-trading-bot-go/internal/ledger"
	"forex-trading-bot-go/internal/logger"
	"forex-trading-bot-go/internal/notifier"
	"forex-trading-bot-go/internal/rates"
	"forex-trading-bot-go/internal/scheduler"
	"forex-trading-bot-go/internal/trading"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Core services
	ledgerSvc := ledger.NewService(db, log)
	dispatcher := notifier.NewLogDispatcher(log)
	tradingSvc := trading.NewService(db, ledgerSvc, log)
	alertSvc := alerts.NewService(db, dispatcher, log)

	// Exchange-rate feed
	client := rates.NewClient(&cfg.Feed, log)
	staleness := time.Duration(cfg.Feed.StalenessLimit) * time.Second
	feed := rates.NewFeed(client, cfg.Trading.Pairs, staleness, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	go feed.Poll(ctx, time.Duration(cfg.Feed.PollInterval)*time.Second)

	// Trigger engine and status API
	engine := scheduler.NewEngine(log, &cfg, feed, tradingSvc, alertSvc, ledgerSvc, dispatcher)
	api := scheduler.NewAPIServer(engine, cfg.Server.Port, log)
	api.Start()

	engine.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Engine has been shut down.")
}
