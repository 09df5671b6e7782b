package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/traffic-notify/internal/adapter/feed"
	httpadapter "github.com/couchcryptid/traffic-notify/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/traffic-notify/internal/adapter/kafka"
	"github.com/couchcryptid/traffic-notify/internal/city"
	"github.com/couchcryptid/traffic-notify/internal/config"
	"github.com/couchcryptid/traffic-notify/internal/observability"
	"github.com/couchcryptid/traffic-notify/internal/persist"
	"github.com/couchcryptid/traffic-notify/internal/poller"
	"github.com/couchcryptid/traffic-notify/internal/store"

	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Notification cache backend.
	var cache persist.Store
	var closers []io.Closer
	switch cfg.CacheBackend {
	case config.CacheBackendSQLite:
		sqlStore, err := persist.NewSQLiteStore(cfg.CachePath, logger)
		if err != nil {
			logger.Error("failed to open sqlite cache", "path", cfg.CachePath, "error", err)
			os.Exit(1)
		}
		closers = append(closers, sqlStore)
		cache = sqlStore
	default:
		cache = persist.NewFileStore(cfg.CachePath, logger)
	}
	logger.Info("notification cache ready", "backend", cfg.CacheBackend, "path", cfg.CachePath)

	// Kafka fan-out (feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS).
	var publisher store.Publisher
	if cfg.KafkaEnabled {
		kp := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		closers = append(closers, kp)
		publisher = kp
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	notifications := store.New(ctx, cache, publisher, logger, metrics)
	cities := city.NewProvider(cfg.DefaultCity)

	feedClient := feed.NewClient(cfg.FeedURL, cfg.FeedAPIKey, cfg.FeedTimeout, logger)
	p := poller.New(feedClient, notifications, cities.Current,
		cfg.PollInterval, cfg.FeedTimeout, clockwork.NewRealClock(), logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, notifications, cities, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start feed poller.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("poller error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
