package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"eka-mcp/internal/ekamcp"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (json or yaml)")
	transport := flag.String("transport", "", "transport override: stdio or http")
	flag.Parse()

	// Create a basic logger for early errors
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("init logger: %v", err))
	}
	defer logger.Sync()

	cfg, err := ekamcp.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if *transport != "" {
		cfg.Transport = *transport
		if err := cfg.Validate(); err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
	}

	// Recreate logger with configured log level
	configured, err := ekamcp.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Fatal("init logger with config", zap.Error(err))
	}
	logger = configured
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("transport", cfg.Transport),
		zap.String("state_dir", cfg.StateDir),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("external_token", cfg.AccessToken != ""),
		zap.Int("users", len(cfg.Users)),
	)

	srv, err := ekamcp.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Transport {
	case "http":
		if err := srv.ServeHTTP(ctx); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	default:
		if err := srv.ServeStdio(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}
}
