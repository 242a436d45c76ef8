// Package router configures HTTP routes for the forecaster's HTTP API.
//
// Routes configured:
//   - POST /api/predict           - Next-hour prediction from one observation
//   - POST /api/predict/24h       - 24-step autoregressive forecast
//   - POST /api/predict/multistep - Final values of 3h, 6h, 12h and 24h rollouts
//   - GET  /api/health            - Model load state
//   - GET  /api/forecast/latest   - Last stored forecast (?kind=24h|multistep)
//   - GET  /healthz               - Liveness (always 200 OK)
//   - GET  /readyz                - Readiness (503 until a model is loaded)
//   - GET  /metrics               - Prometheus metrics
//   - GET  /                      - Static frontend, when a directory is configured
//
// Stored forecasts older than the stale threshold carry an X-Wattcast-Stale header.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/wattcast/pkg/forecast"
	"github.com/HatiCode/wattcast/pkg/httpx"
	"github.com/HatiCode/wattcast/pkg/storage"
)

// StaleHeader marks a stored forecast older than Options.StaleAfter.
const StaleHeader = "X-Wattcast-Stale"

const maxBodyBytes = 1 << 20

// Client-facing error messages.
const (
	msgModelUnavailable = "Model not loaded on server"
	msgInvalidTimestamp = "Invalid timestamp"
	msgInvalidPayload   = "Invalid payload or missing fields: "
	msgInternal         = "internal server error"
)

// Options configures optional routes.
type Options struct {
	// StaleAfter is the age after which a stored forecast is flagged stale.
	StaleAfter time.Duration
	// StaticDir is served at / when non-empty.
	StaticDir string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// SetupRoutes configures HTTP endpoints for the forecaster.
func SetupRoutes(engine *forecast.Engine, store storage.Store, opts Options, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Hour
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/predict", handlePredict(engine, logger))
	mux.HandleFunc("POST /api/predict/24h", handleForecast24h(engine, logger))
	mux.HandleFunc("POST /api/predict/multistep", handleMultistep(engine, logger))
	mux.HandleFunc("GET /api/health", handleHealth(engine, logger))
	mux.HandleFunc("GET /api/forecast/latest", handleLatest(store, opts.StaleAfter, logger))

	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /readyz", httpx.HealthHandlerWithCheck(engine.Ready))

	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	if opts.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(opts.StaticDir)))
	}

	return mux
}

func handlePredict(engine *forecast.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode(w, r, engine, forecast.DecodeRequest)
		if !ok {
			return
		}

		p, err := engine.PredictNext(r.Context(), req)
		if err != nil {
			writeEngineError(w, err, logger)
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, p); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleForecast24h(engine *forecast.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode(w, r, engine, forecast.DecodeObservation)
		if !ok {
			return
		}

		f, err := engine.Forecast24h(r.Context(), req)
		if err != nil {
			writeEngineError(w, err, logger)
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, f); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleMultistep(engine *forecast.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decode(w, r, engine, forecast.DecodeObservation)
		if !ok {
			return
		}

		out, err := engine.Multistep(r.Context(), req)
		if err != nil {
			writeEngineError(w, err, logger)
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, out); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleHealth(engine *forecast.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := httpx.WriteJSON(w, http.StatusOK, engine.Health()); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// handleLatest returns a handler for GET /api/forecast/latest?kind=<kind>.
func handleLatest(store storage.Store, staleAfter time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, "forecast storage disabled")
			return
		}

		kind := r.URL.Query().Get("kind")
		if kind == "" {
			kind = storage.KindDayAhead
		}
		if kind != storage.KindDayAhead && kind != storage.KindMultistep {
			httpx.WriteErrorMessage(w, http.StatusBadRequest,
				fmt.Sprintf("invalid kind %q (must be %s or %s)", kind, storage.KindDayAhead, storage.KindMultistep))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snapshot, found, err := store.GetLatest(ctx, kind)
		if err != nil {
			logger.Error("failed to get snapshot", "kind", kind, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, msgInternal)
			return
		}
		if !found {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no %s forecast available", kind))
			return
		}

		if time.Since(snapshot.GeneratedAt) > staleAfter {
			w.Header().Set(StaleHeader, "true")
		}

		if err := httpx.WriteJSON(w, http.StatusOK, snapshot); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

// decode checks readiness and parses the body. It writes the error reply
// and returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, engine *forecast.Engine, fn func([]byte) (forecast.Request, error)) (forecast.Request, bool) {
	if err := engine.Ready(); err != nil {
		httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, msgModelUnavailable)
		return forecast.Request{}, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, msgInvalidPayload+err.Error())
		return forecast.Request{}, false
	}

	req, err := fn(body)
	if err != nil {
		writeEngineError(w, err, nil)
		return forecast.Request{}, false
	}
	return req, true
}

// writeEngineError maps engine errors to status codes and messages.
func writeEngineError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, forecast.ErrModelUnavailable):
		httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, msgModelUnavailable)
	case errors.Is(err, forecast.ErrInvalidTimestamp):
		httpx.WriteErrorMessage(w, http.StatusBadRequest, msgInvalidTimestamp)
	case errors.Is(err, forecast.ErrInvalidPayload):
		cause := strings.TrimPrefix(err.Error(), forecast.ErrInvalidPayload.Error()+": ")
		httpx.WriteErrorMessage(w, http.StatusBadRequest, msgInvalidPayload+cause)
	default:
		if logger != nil {
			logger.Error("forecast failed", "error", err)
		}
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, msgInternal)
	}
}
