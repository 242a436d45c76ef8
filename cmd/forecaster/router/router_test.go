package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/wattcast/pkg/features"
	"github.com/HatiCode/wattcast/pkg/forecast"
	"github.com/HatiCode/wattcast/pkg/models"
	"github.com/HatiCode/wattcast/pkg/storage"
)

const validBody = `{"current_energy_usage": 300, "temperature_C": 12, "humidity_pct": 60, "timestamp": "2025-11-19T14:00:00"}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func constModel(v float64) models.Model {
	return models.Func{ID: "xgboost", Fn: func(features.Vector) (float64, error) { return v, nil }}
}

func setup(t *testing.T, model models.Model, opts Options) (*http.ServeMux, *forecast.Engine, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	t.Cleanup(store.Stop)

	engine := forecast.New(nil, model, store, nil, discardLogger(), nil)
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.NewRegistry()
	}
	return SetupRoutes(engine, store, opts, discardLogger()), engine, store
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	mux, _, _ := setup(t, nil, Options{})

	w := do(mux, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != "OK" {
		t.Errorf("body = %q, want %q", body, "OK")
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name  string
		model models.Model
		want  int
	}{
		{"model loaded", constModel(1), http.StatusOK},
		{"no model", nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, _, _ := setup(t, tt.model, Options{})
			if w := do(mux, http.MethodGet, "/readyz", ""); w.Code != tt.want {
				t.Errorf("status code = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "wattcast_test_total", Help: "test"}))
	mux, _, _ := setup(t, nil, Options{Gatherer: reg})

	w := do(mux, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "wattcast_test_total") {
		t.Error("metrics output missing registered counter")
	}
}

func TestAPIHealth(t *testing.T) {
	mux, _, _ := setup(t, nil, Options{})

	w := do(mux, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var got forecast.Health
	decodeBody(t, w, &got)
	if got.Status != "running" || got.Model != "unknown" || got.ModelLoaded {
		t.Errorf("health = %+v", got)
	}
}

func TestPredict(t *testing.T) {
	mux, engine, _ := setup(t, constModel(123.45), Options{})

	w := do(mux, http.MethodPost, "/api/predict", validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var got map[string]any
	decodeBody(t, w, &got)
	if got["predicted_energy_next_hour"] != 123.45 {
		t.Errorf("predicted_energy_next_hour = %v, want 123.45", got["predicted_energy_next_hour"])
	}
	if got["model_used"] != "xgboost" {
		t.Errorf("model_used = %v, want xgboost", got["model_used"])
	}
	if got["timestamp"] != "2025-11-19 14:00:00" {
		t.Errorf("timestamp = %v, want 2025-11-19 14:00:00", got["timestamp"])
	}
	if engine.HistoryLen() != 1 {
		t.Errorf("history length = %d, want 1", engine.HistoryLen())
	}
}

func TestPredict24h(t *testing.T) {
	mux, _, store := setup(t, constModel(0), Options{})

	w := do(mux, http.MethodPost, "/api/predict/24h", validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var got struct {
		Forecast []float64 `json:"forecast_24h"`
	}
	decodeBody(t, w, &got)
	if len(got.Forecast) != 24 {
		t.Fatalf("len(forecast_24h) = %d, want 24", len(got.Forecast))
	}

	if _, ok, _ := store.GetLatest(context.Background(), storage.KindDayAhead); !ok {
		t.Error("expected stored 24h snapshot")
	}
}

func TestPredict24h_IgnoresTimestamp(t *testing.T) {
	mux, _, _ := setup(t, constModel(0), Options{})

	body := `{"current_energy_usage": 1, "temperature_C": 2, "humidity_pct": 3, "timestamp": "garbage"}`
	if w := do(mux, http.MethodPost, "/api/predict/24h", body); w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestPredictMultistep(t *testing.T) {
	mux, engine, _ := setup(t, constModel(5), Options{})

	w := do(mux, http.MethodPost, "/api/predict/multistep", validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var got map[string]float64
	decodeBody(t, w, &got)
	for _, k := range []string{"3h", "6h", "12h", "24h"} {
		if got[k] != 5 {
			t.Errorf("%s = %v, want 5", k, got[k])
		}
	}
	if engine.HistoryLen() != 45 {
		t.Errorf("history length = %d, want 45", engine.HistoryLen())
	}
}

func TestPredict_Errors(t *testing.T) {
	failing := models.Func{ID: "xgboost", Fn: func(features.Vector) (float64, error) {
		return 0, errors.New("tree walk failed")
	}}

	tests := []struct {
		name     string
		model    models.Model
		path     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "model not loaded",
			path:     "/api/predict",
			body:     validBody,
			wantCode: http.StatusServiceUnavailable,
			wantMsg:  "Model not loaded on server",
		},
		{
			name:     "model not loaded 24h",
			path:     "/api/predict/24h",
			body:     validBody,
			wantCode: http.StatusServiceUnavailable,
			wantMsg:  "Model not loaded on server",
		},
		{
			name:     "missing humidity",
			model:    constModel(1),
			path:     "/api/predict",
			body:     `{"current_energy_usage": 1, "temperature_C": 2}`,
			wantCode: http.StatusBadRequest,
			wantMsg:  `Invalid payload or missing fields: missing field "humidity_pct"`,
		},
		{
			name:     "malformed json",
			model:    constModel(1),
			path:     "/api/predict/multistep",
			body:     `{`,
			wantCode: http.StatusBadRequest,
			wantMsg:  "Invalid payload or missing fields: body is not valid JSON",
		},
		{
			name:     "invalid timestamp",
			model:    constModel(1),
			path:     "/api/predict",
			body:     `{"current_energy_usage": 1, "temperature_C": 2, "humidity_pct": 3, "timestamp": "yesterday"}`,
			wantCode: http.StatusBadRequest,
			wantMsg:  "Invalid timestamp",
		},
		{
			name:     "predictor failure",
			model:    failing,
			path:     "/api/predict/24h",
			body:     validBody,
			wantCode: http.StatusInternalServerError,
			wantMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, engine, _ := setup(t, tt.model, Options{})

			w := do(mux, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var got struct {
				Error string `json:"error"`
			}
			decodeBody(t, w, &got)
			if got.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", got.Error, tt.wantMsg)
			}

			if tt.model == nil && engine.HistoryLen() != 0 {
				t.Errorf("history length = %d, want 0 when model is unavailable", engine.HistoryLen())
			}
		})
	}
}

func TestPredict_MethodNotAllowed(t *testing.T) {
	mux, _, _ := setup(t, constModel(1), Options{})

	if w := do(mux, http.MethodGet, "/api/predict", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestLatest(t *testing.T) {
	mux, _, store := setup(t, constModel(1), Options{StaleAfter: time.Minute})

	if w := do(mux, http.MethodGet, "/api/forecast/latest", ""); w.Code != http.StatusNotFound {
		t.Errorf("status code before any forecast = %d, want 404", w.Code)
	}

	if w := do(mux, http.MethodGet, "/api/forecast/latest?kind=weekly", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status code for bad kind = %d, want 400", w.Code)
	}

	fresh := storage.Snapshot{
		Kind:        storage.KindMultistep,
		Model:       "xgboost",
		GeneratedAt: time.Now(),
		Horizons:    map[string]float64{"3h": 1},
	}
	if err := store.Put(context.Background(), fresh); err != nil {
		t.Fatal(err)
	}

	w := do(mux, http.MethodGet, "/api/forecast/latest?kind=multistep", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}
	if w.Header().Get(StaleHeader) != "" {
		t.Error("fresh snapshot flagged stale")
	}

	var got storage.Snapshot
	decodeBody(t, w, &got)
	if got.Horizons["3h"] != 1 {
		t.Errorf("horizons = %v", got.Horizons)
	}

	old := fresh
	old.Kind = storage.KindDayAhead
	old.GeneratedAt = time.Now().Add(-time.Hour)
	old.Values = []float64{1}
	if err := store.Put(context.Background(), old); err != nil {
		t.Fatal(err)
	}

	w = do(mux, http.MethodGet, "/api/forecast/latest?kind=24h", "")
	if w.Header().Get(StaleHeader) != "true" {
		t.Errorf("%s = %q, want true", StaleHeader, w.Header().Get(StaleHeader))
	}
}

func TestLatest_NoStore(t *testing.T) {
	engine := forecast.New(nil, nil, nil, nil, discardLogger(), nil)
	mux := SetupRoutes(engine, nil, Options{Gatherer: prometheus.NewRegistry()}, discardLogger())

	if w := do(mux, http.MethodGet, "/api/forecast/latest", ""); w.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want 404", w.Code)
	}
}

func TestStaticFrontend(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>wattcast</h1>"), 0o600); err != nil {
		t.Fatal(err)
	}
	mux, _, _ := setup(t, nil, Options{StaticDir: dir})

	w := do(mux, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "wattcast") {
		t.Errorf("body = %q", w.Body.String())
	}
}
