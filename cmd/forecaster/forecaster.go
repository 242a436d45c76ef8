// Package main assembles the forecaster from its configuration.
//
// This file contains the Forecaster type, which owns every long-lived
// component (snapshot store, prediction journal, model, engine, metrics)
// and exposes the HTTP handler that serves them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/wattcast/cmd/forecaster/config"
	"github.com/HatiCode/wattcast/cmd/forecaster/metrics"
	"github.com/HatiCode/wattcast/cmd/forecaster/models"
	"github.com/HatiCode/wattcast/cmd/forecaster/router"
	"github.com/HatiCode/wattcast/pkg/features"
	"github.com/HatiCode/wattcast/pkg/forecast"
	"github.com/HatiCode/wattcast/pkg/history"
	"github.com/HatiCode/wattcast/pkg/httpx"
	"github.com/HatiCode/wattcast/pkg/recorder"
	"github.com/HatiCode/wattcast/pkg/storage"
)

// Forecaster holds the wired components of one forecaster process.
type Forecaster struct {
	cfg     *config.Config
	engine  *forecast.Engine
	store   storage.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	closers []io.Closer
}

// New builds a Forecaster. A model that fails to load is logged and leaves
// the engine unavailable; storage and journal failures are fatal.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Forecaster, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f := &Forecaster{cfg: cfg, logger: logger}

	store, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	f.store = store
	if c, ok := store.(io.Closer); ok {
		f.closers = append(f.closers, c)
	}

	var journal recorder.Recorder
	if cfg.RecorderDSN != "" {
		rec, err := recorder.Open(ctx, cfg.RecorderDSN)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open prediction journal: %w", err)
		}
		logger.Info("prediction journal enabled", "driver", rec.Driver())
		journal = rec
		f.closers = append(f.closers, rec)
	}

	model, err := models.New(cfg, logger)
	if err != nil {
		logger.Error("model not loaded, serving without predictions", "model", cfg.Model, "error", err)
		model = nil
	}

	modelName := cfg.ModelName
	if model != nil {
		modelName = model.Name()
	}
	f.metrics = metrics.New(modelName, reg)
	f.metrics.SetModelLoaded(model != nil)

	loc, err := cfg.Location()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	builder := features.NewBuilder(history.New(cfg.HistoryCapacity))
	f.engine = forecast.New(builder, model, store, journal, logger, f.metrics)
	f.engine.SetLocation(loc)

	return f, nil
}

// Engine returns the forecast engine.
func (f *Forecaster) Engine() *forecast.Engine {
	return f.engine
}

// Handler returns the HTTP API wrapped in recovery, logging and CORS
// middleware. gatherer backs /metrics.
func (f *Forecaster) Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := router.SetupRoutes(f.engine, f.store, router.Options{
		StaleAfter: f.cfg.StaleAfter,
		StaticDir:  f.cfg.StaticDir,
		Gatherer:   gatherer,
	}, f.logger)

	return httpx.Chain(mux,
		httpx.RecoveryMiddleware(f.logger),
		httpx.LoggingMiddleware(f.logger),
		httpx.CORSMiddleware(f.cfg.CORSOrigin),
	)
}

// Close releases the store and journal.
func (f *Forecaster) Close() error {
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	return errors.Join(errs...)
}

func newStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageRedis:
		logger.Info("using Redis snapshot storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.SnapshotTTL)
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SnapshotTTL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return s, nil

	default:
		logger.Info("using in-memory snapshot storage", "ttl", cfg.SnapshotTTL)
		if cfg.SnapshotTTL > 0 {
			return storage.NewMemoryStoreWithTTL(cfg.SnapshotTTL, time.Minute), nil
		}
		return storage.NewMemoryStore(), nil
	}
}
