package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/viljami/ruuvi-home/internal/cache"
	"github.com/viljami/ruuvi-home/internal/pipeline"
	"github.com/viljami/ruuvi-home/internal/store"
	"github.com/viljami/ruuvi-home/pkg/config"
	"github.com/viljami/ruuvi-home/pkg/health"
	"github.com/viljami/ruuvi-home/pkg/metrics"
	"github.com/viljami/ruuvi-home/pkg/mqtt"
	"github.com/viljami/ruuvi-home/pkg/redis"
)

// Exit codes: 0 clean shutdown, 1 fatal config error, 2 schema/migration
// mismatch, 3 unrecoverable store error at startup.
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
	cfg.ServiceName = "ruuvi-ingester"
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

	logger.Info("Starting ruuvi-ingester",
		"broker", cfg.MQTTBrokerURL,
		"topic", cfg.MQTTTopic)

	m := metrics.New()

	st, err := store.Open(ctx, cfg, logger)
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
			logger.Warn("Redis unreachable, continuing without latest-reading cache", "error", err)
		} else {
			latest = cache.NewLatest(redisClient, logger)
			defer redisClient.Close()
		}
	}

	mqttClient := mqtt.NewClient(cfg, logger, func(connected bool) {
		if connected {
			m.MQTTConnected.Set(1)
		} else {
			m.MQTTConnected.Set(0)
		}
	})

	if err := mqttClient.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return exitOK
		}
		logger.Error("Failed to connect to MQTT broker", "error", err)
		return exitConfig
	}
	defer mqttClient.Disconnect()

	startHealthServer(cfg, m, mqttClient, st, logger)

	pl := pipeline.New(cfg, mqttClient, st, latest, m, logger)
	if err := pl.Run(ctx); err != nil {
		logger.Error("Pipeline failed", "error", err)
		return exitConfig
	}

	logger.Info("Clean shutdown")
	return exitOK
}

// startHealthServer serves the liveness probe and the metrics scrape
// endpoint on the health port
func startHealthServer(cfg *config.Config, m *metrics.Metrics, mqttClient mqtt.Client, st *store.Store, logger *slog.Logger) {
	checker := health.NewChecker(mqttClient, st.Client(), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.HandlerFunc())
	mux.HandleFunc("/healthz/detail", checker.DetailedHandlerFunc())
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HealthPort),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server failed", "error", err)
		}
	}()
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
