package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gridsim/alert"
	"gridsim/api"
	"gridsim/config"
	"gridsim/engine"
	"gridsim/logger"
	"gridsim/manager"
	"gridsim/market"
	"gridsim/store"
)

func main() {
	// Load environment variables from .env file if present (for local/dev runs)
	_ = godotenv.Load()

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("❌ Failed to load config: %v", err)
	}

	if err := logger.Init(&cfg.Log); err != nil {
		logger.Fatalf("❌ Failed to init logger: %v", err)
	}

	logger.Info("🚀 gridsim - grid trading simulation engine")

	logger.Infof("📋 Opening database: %s", cfg.DBPath)
	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("❌ Failed to open database: %v", err)
	}

	var notifier *alert.Notifier
	if cfg.TelegramBotToken != "" {
		notifier = alert.NewNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	}

	prices := market.NewBinanceSource(cfg.BinanceBaseURL)

	sessions := manager.NewSessionManager(st.Session(), st.Profit(), prices, manager.Options{
		HistoryRetention: cfg.HistoryRetention,
		FeeTier:          engine.FeeTier{ThresholdUSD: cfg.FeeThresholdUSD, Rate: cfg.FeeRate},
		AutorunInterval:  time.Duration(cfg.AutorunIntervalSec) * time.Second,
		Notifier:         notifier,
	})
	if err := sessions.Load(); err != nil {
		logger.Fatalf("❌ Failed to restore sessions: %v", err)
	}

	apiServer := api.NewServer(sessions, cfg.JWTSecret, cfg.APIServerPort)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Errorf("❌ API server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("📛 Shutdown signal received, closing gracefully...")

	logger.Info("⏸️  Stopping session manager...")
	sessions.Shutdown()

	logger.Info("🛑 Stopping API server...")
	if err := apiServer.Shutdown(); err != nil {
		logger.Warnf("⚠️  API server shutdown error: %v", err)
	}

	logger.Info("💾 Closing database...")
	if err := st.Close(); err != nil {
		logger.Errorf("❌ Failed to close database: %v", err)
	}

	logger.Info("👋 gridsim stopped")
}
