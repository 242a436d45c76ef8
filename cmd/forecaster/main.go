// Command forecaster serves hourly energy usage predictions.
//
// Every request feeds the observed usage into a shared in-process history,
// from which lag and rolling features are derived for the model. Multi-step
// forecasts feed each prediction back as the next hour's usage.
//
// HTTP API (port 8000 by default):
//   - POST /api/predict           - next-hour prediction
//   - POST /api/predict/24h       - 24-hour autoregressive forecast
//   - POST /api/predict/multistep - 3h, 6h, 12h and 24h horizons
//   - GET  /api/health            - model load state
//   - GET  /api/forecast/latest   - last stored forecast
//   - GET  /healthz, /readyz      - liveness and readiness
//   - GET  /metrics               - Prometheus metrics
//
// Usage:
//
//	forecaster \
//	  -model=xgboost \
//	  -model-path=models/xgboost_energy.json \
//	  -storage=redis -redis-addr=redis:6379 \
//	  -recorder-dsn=/var/lib/wattcast/journal.db
//
// Environment variables:
//
//	LISTEN           - HTTP listen address (default: :8000)
//	GRPC_LISTEN      - gRPC health listen address (default: disabled)
//	CONFIG_FILE      - YAML config file
//	MODEL            - Model backend: xgboost, byom or baseline (default: xgboost)
//	MODEL_PATH       - XGBoost JSON dump path
//	MODEL_BASE_SCORE - XGBoost base score (required for a raw tree dump)
//	BYOM_URL         - External model server URL (model=byom)
//	STORAGE          - Snapshot storage: memory or redis (default: memory)
//	RECORDER_DSN     - Prediction journal: sqlite path or postgres:// URL
//	HISTORY_CAPACITY - Usage history capacity (default: 300)
//	TIMEZONE         - Zone for naive timestamps (default: Local)
//	LOG_LEVEL        - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT       - Logging format: text, json (default: text)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/wattcast/cmd/forecaster/config"
	"github.com/HatiCode/wattcast/cmd/forecaster/logger"
	"github.com/HatiCode/wattcast/pkg/httpx"
)

// version is set via ldflags at build time
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting wattcast forecaster",
		"version", version,
		"model", cfg.Model,
		"storage", cfg.Storage,
		"history_capacity", cfg.HistoryCapacity,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	f, err := New(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		stop()
		logger.Error("failed to initialize forecaster", "error", err)
		os.Exit(1)
	}

	err = run(ctx, cfg, f, prometheus.DefaultGatherer, logger)
	stop()

	if cerr := f.Close(); cerr != nil {
		logger.Error("failed to close forecaster", "error", cerr)
	}
	if err != nil {
		logger.Error("forecaster stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// run serves f over HTTP, and gRPC health when configured, until ctx is
// done or a server fails. Servers it started are stopped before it
// returns; closing f is left to the caller.
func run(ctx context.Context, cfg *config.Config, f *Forecaster, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	serverTLS, err := cfg.TLS.ServerConfig()
	if err != nil {
		return fmt.Errorf("load tls config: %w", err)
	}

	var grpcSrv *grpcHealth
	if cfg.GRPCListen != "" {
		grpcSrv, err = newGRPCHealth(cfg.GRPCListen, logger)
		if err != nil {
			return fmt.Errorf("start grpc health server: %w", err)
		}
		grpcSrv.SetServing(f.Engine().Ready() == nil)
	}

	httpServer := httpx.NewServer(cfg.Listen, f.Handler(gatherer), logger)
	if serverTLS != nil {
		httpServer.SetTLSConfig(serverTLS)
	}

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()
	if grpcSrv != nil {
		go func() {
			serverErr <- grpcSrv.Serve()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-serverErr:
		if runErr != nil {
			logger.Error("server failed", "error", runErr)
		}
	}

	logger.Info("shutting down")

	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	if err := httpServer.Stop(shutdownTimeout); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
