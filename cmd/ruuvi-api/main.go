package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/viljami/ruuvi-home/internal/api"
	"github.com/viljami/ruuvi-home/internal/cache"
	"github.com/viljami/ruuvi-home/internal/store"
	"github.com/viljami/ruuvi-home/pkg/config"
	"github.com/viljami/ruuvi-home/pkg/redis"
)

const (
	exitOK     = 0
	exitConfig = 1
	exitSchema = 2
	exitStore  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg := config.NewConfig()
	cfg.ServiceName = "ruuvi-api"
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitConfig
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting ruuvi-api", "port", cfg.APIPort)

	// Read-only: the ingester owns migrations, this process only verifies
	st, err := store.OpenReadOnly(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		if errors.Is(err, store.ErrSchemaVersion) {
			return exitSchema
		}
		return exitStore
	}
	defer st.Close()

	var latest *cache.Latest
	if cfg.CacheEnabled() {
		redisClient := redis.NewClient(cfg, logger)
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("Redis unreachable, serving latest from the database", "error", err)
		} else {
			latest = cache.NewLatest(redisClient, logger)
			defer redisClient.Close()
		}
	}

	srv := api.NewServer(cfg, st, latest, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("API server failed", "error", err)
		return exitConfig
	}

	logger.Info("Clean shutdown")
	return exitOK
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
}
