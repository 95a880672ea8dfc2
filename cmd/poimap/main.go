package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/poi-map/internal/adapter/http"
	"github.com/couchcryptid/poi-map/internal/adapter/feed"
	kafkaadapter "github.com/couchcryptid/poi-map/internal/adapter/kafka"
	"github.com/couchcryptid/poi-map/internal/adapter/mapbox"
	"github.com/couchcryptid/poi-map/internal/cluster"
	"github.com/couchcryptid/poi-map/internal/config"
	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/loader"
	"github.com/couchcryptid/poi-map/internal/observability"
	"github.com/couchcryptid/poi-map/internal/session"
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
	clock := clockwork.NewRealClock()

	// Geocoding is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		cached, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create geocoder cache", "error", err)
			os.Exit(1)
		}
		geocoder = cached
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	feeds := loader.Feeds{
		Primary:         cfg.PrimaryFeedURL,
		Activated:       cfg.ActivatedFeedURL,
		Queued:          cfg.QueuedFeedURL,
		PrimaryParser:   cfg.PrimaryParser,
		SecondaryParser: cfg.SecondaryParser,
	}
	fetcher := feed.NewClient(cfg.FeedTimeout, cfg.FeedCacheBust, logger)
	clusters := cluster.Options{MaxZoom: cfg.Map.ClusterMaxZoom, Radius: cfg.Map.ClusterRadius}
	l := loader.New(fetcher, feeds, clusters, cfg.RefreshInterval, clock, logger, metrics)

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		l.WithPublisher(writer)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	sessions := session.NewRegistry(cfg.SessionCapacity, cfg.SessionTTL, cfg.RecolorInterval, clock, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Ready:           l,
		Data:            l,
		Sessions:        sessions,
		Geocoder:        geocoder,
		ClusterThrottle: session.NewThrottle(cfg.RecolorInterval, clock),
		Metrics:         metrics,
		Map:             cfg.Map,
		PublicURL:       cfg.PublicURL,
		MapboxToken:     cfg.MapboxToken,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start feed loading.
	go func() {
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("loader error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
