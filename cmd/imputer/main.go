package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/wildfire-imputer/internal/adapter/gcs"
	httpadapter "github.com/couchcryptid/wildfire-imputer/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/wildfire-imputer/internal/adapter/kafka"
	"github.com/couchcryptid/wildfire-imputer/internal/artifact"
	"github.com/couchcryptid/wildfire-imputer/internal/config"
	"github.com/couchcryptid/wildfire-imputer/internal/imputer"
	"github.com/couchcryptid/wildfire-imputer/internal/observability"
	"github.com/couchcryptid/wildfire-imputer/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Artifact download from GCS (feature-flagged via IMPUTER_GCS_BUCKET).
	var fetcher artifact.Fetcher
	var store *gcs.Store
	if cfg.GCSFetchEnabled {
		store, err = gcs.NewStore(ctx, cfg.GCSBucket, cfg.GCSObject, cfg.GCSCredentials, logger)
		if err != nil {
			logger.Error("failed to create gcs client", "error", err)
			os.Exit(1)
		}
		fetcher = store
		logger.Info("gcs artifact fetch enabled", "bucket", cfg.GCSBucket, "object", cfg.GCSObject)
	} else {
		logger.Info("gcs artifact fetch disabled")
	}

	provider := artifact.NewProvider(cfg.ImputerPath, fetcher, imputer.Config{
		DefaultK:  cfg.DefaultK,
		CacheSize: cfg.IndexCacheSize,
	}, logger, metrics)

	// Warm the engine so the first request does not pay for the load.
	go func() {
		if _, err := provider.Engine(ctx); err != nil {
			logger.Warn("artifact warmup failed, will retry on first request", "error", err)
		}
	}()

	srv := httpadapter.NewServer(cfg.HTTPAddr, provider, provider, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Streaming imputation (feature-flagged via KAFKA_ENABLED).
	var reader *kafkaadapter.Reader
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(provider, logger)
		p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize, cfg.Concurrency)

		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		logger.Info("kafka pipeline disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("gcs client close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
