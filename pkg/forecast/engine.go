// Package forecast drives the energy model: single-step predictions and
// autoregressive rollouts where every prediction is fed back as the next
// hour's observed usage.
//
// All operations share one usage history per process. The Engine serializes
// them, so the records of one rollout are never interleaved with another
// request's, but every call still advances the shared history: invocation
// order is observable in later lag and rolling features.
package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/HatiCode/wattcast/pkg/features"
	"github.com/HatiCode/wattcast/pkg/models"
	"github.com/HatiCode/wattcast/pkg/recorder"
	"github.com/HatiCode/wattcast/pkg/storage"
)

// DayAheadSteps is the length of the fixed-horizon rollout.
const DayAheadSteps = 24

// Horizons are the hour offsets reported by Multistep.
var Horizons = []int{3, 6, 12, 24}

// Layouts for rendering resolved timestamps to clients. The zoned form is
// used when the request timestamp carried its own offset.
const (
	TimestampLayout      = "2006-01-02 15:04:05"
	TimestampLayoutZoned = "2006-01-02 15:04:05-07:00"
)

// unknownModel is reported by Health when no model is loaded.
const unknownModel = "unknown"

// Metrics receives engine instrumentation. *metrics.Metrics from the
// forecaster command implements it.
type Metrics interface {
	RecordPredict(seconds float64)
	RecordOperation(operation string, seconds float64)
	RecordError(component, reason string)
	SetHistoryLength(n int)
	SetPredictedValue(value float64)
}

// Prediction is the result of PredictNext.
type Prediction struct {
	Value     float64   `json:"predicted_energy_next_hour"`
	Model     string    `json:"model_used"`
	Timestamp string    `json:"timestamp"`
	At        time.Time `json:"-"`
}

// Forecast is the result of Forecast24h. Values are rounded for display;
// Raw holds the full-precision predictions that were fed back.
type Forecast struct {
	Values []float64 `json:"forecast_24h"`
	Raw    []float64 `json:"-"`
}

// Multistep maps a horizon label ("3h", "6h", ...) to its rounded prediction.
type Multistep map[string]float64

// Health reports whether a model is loaded.
type Health struct {
	Status      string `json:"status"`
	Model       string `json:"model"`
	ModelLoaded bool   `json:"model_loaded"`
}

// trajectory is the output of one rollout.
type trajectory struct {
	display []float64
	raw     []float64
}

func (t trajectory) last() float64 {
	return t.display[len(t.display)-1]
}

// Engine orchestrates feature building and prediction.
type Engine struct {
	mu        sync.Mutex
	builder   *features.Builder
	model     models.Model
	snapshots storage.Store
	journal   recorder.Recorder
	logger    *slog.Logger
	metrics   Metrics

	now func() time.Time
	loc *time.Location
}

// New creates an Engine. A nil model puts the engine in the "model
// unavailable" state; snapshots, journal and metrics are optional.
func New(
	builder *features.Builder,
	model models.Model,
	snapshots storage.Store,
	journal recorder.Recorder,
	logger *slog.Logger,
	metrics Metrics,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if builder == nil {
		builder = features.NewBuilder(nil)
	}

	return &Engine{
		builder:   builder,
		model:     model,
		snapshots: snapshots,
		journal:   journal,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
		loc:       time.Local,
	}
}

// SetLocation sets the zone used for timestamps without an offset and for
// "now". The default is time.Local.
func (e *Engine) SetLocation(loc *time.Location) {
	if loc != nil {
		e.loc = loc
	}
}

// Ready returns ErrModelUnavailable when no model is loaded.
func (e *Engine) Ready() error {
	if e.model == nil {
		return ErrModelUnavailable
	}
	return nil
}

// Health reports the model load state. It does not inspect history.
func (e *Engine) Health() Health {
	h := Health{Status: "running", Model: unknownModel}
	if e.model != nil {
		h.Model = e.model.Name()
		h.ModelLoaded = true
	}
	return h
}

// HistoryLen returns the number of observations in the shared history.
func (e *Engine) HistoryLen() int {
	return e.builder.HistoryLen()
}

// PredictNext predicts the next hour from one observation.
func (e *Engine) PredictNext(ctx context.Context, req Request) (Prediction, error) {
	if err := e.Ready(); err != nil {
		e.recordError("engine", "model_unavailable")
		return Prediction{}, err
	}

	ts, zoned, err := e.resolveTimestamp(req.Timestamp)
	if err != nil {
		e.recordError("engine", "invalid_timestamp")
		return Prediction{}, err
	}

	start := time.Now()

	e.mu.Lock()
	v := e.builder.Build(req.CurrentUsage, req.Temperature, req.Humidity, ts)
	raw, err := e.predict(ctx, v)
	e.mu.Unlock()
	e.observeHistory()

	if err != nil {
		return Prediction{}, err
	}

	layout := TimestampLayout
	if zoned {
		layout = TimestampLayoutZoned
	}

	p := Prediction{
		Value:     round(raw),
		Model:     e.model.Name(),
		Timestamp: ts.Format(layout),
		At:        ts,
	}

	e.journalEntry(ctx, recorder.Entry{
		Timestamp:   ts,
		Usage:       req.CurrentUsage,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		Vector:      v,
		Prediction:  raw,
		Model:       p.Model,
	})

	if e.metrics != nil {
		e.metrics.RecordOperation("predict_next", time.Since(start).Seconds())
		e.metrics.SetPredictedValue(p.Value)
	}

	e.logger.Debug("predicted next hour",
		"timestamp", p.Timestamp,
		"prediction", p.Value,
		"history_len", e.builder.HistoryLen(),
	)

	return p, nil
}

// Forecast24h rolls the model forward 24 hours from the current hour,
// feeding every prediction back as the next observation. Request.Timestamp
// is ignored.
func (e *Engine) Forecast24h(ctx context.Context, req Request) (Forecast, error) {
	if err := e.Ready(); err != nil {
		e.recordError("engine", "model_unavailable")
		return Forecast{}, err
	}

	start := time.Now()
	from := e.currentHour()

	e.mu.Lock()
	traj, err := e.rollout(ctx, req, from, DayAheadSteps)
	e.mu.Unlock()
	e.observeHistory()

	if err != nil {
		return Forecast{}, err
	}

	e.saveSnapshot(ctx, storage.Snapshot{
		Kind:        storage.KindDayAhead,
		Model:       e.model.Name(),
		GeneratedAt: e.now(),
		Start:       from,
		Values:      traj.display,
	})

	if e.metrics != nil {
		e.metrics.RecordOperation("forecast_24h", time.Since(start).Seconds())
	}

	e.logger.Info("24h forecast complete",
		"start", from.Format(TimestampLayout),
		"steps", len(traj.display),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Forecast{Values: traj.display, Raw: traj.raw}, nil
}

// Multistep runs an independent rollout for each of Horizons, every one
// starting from the request's usage and the current hour, and reports the
// final prediction of each.
func (e *Engine) Multistep(ctx context.Context, req Request) (Multistep, error) {
	if err := e.Ready(); err != nil {
		e.recordError("engine", "model_unavailable")
		return nil, err
	}

	start := time.Now()
	from := e.currentHour()
	out := make(Multistep, len(Horizons))

	e.mu.Lock()
	for _, h := range Horizons {
		traj, err := e.rollout(ctx, req, from, h)
		if err != nil {
			e.mu.Unlock()
			e.observeHistory()
			return nil, err
		}
		out[HorizonLabel(h)] = traj.last()
	}
	e.mu.Unlock()
	e.observeHistory()

	e.saveSnapshot(ctx, storage.Snapshot{
		Kind:        storage.KindMultistep,
		Model:       e.model.Name(),
		GeneratedAt: e.now(),
		Start:       from,
		Horizons:    out,
	})

	if e.metrics != nil {
		e.metrics.RecordOperation("multistep", time.Since(start).Seconds())
	}

	e.logger.Info("multistep forecast complete",
		"start", from.Format(TimestampLayout),
		"horizons", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return out, nil
}

// HorizonLabel formats an hour offset as used in Multistep keys.
func HorizonLabel(hours int) string {
	return fmt.Sprintf("%dh", hours)
}

// rollout must be called with mu held. The running value starts at the
// request's usage and becomes each raw prediction in turn; rounding only
// affects the display channel.
func (e *Engine) rollout(ctx context.Context, req Request, from time.Time, steps int) (trajectory, error) {
	traj := trajectory{
		display: make([]float64, 0, steps),
		raw:     make([]float64, 0, steps),
	}

	running := req.CurrentUsage
	ts := from
	for i := 0; i < steps; i++ {
		ts = ts.Add(time.Hour)
		v := e.builder.Build(running, req.Temperature, req.Humidity, ts)

		raw, err := e.predict(ctx, v)
		if err != nil {
			return trajectory{}, fmt.Errorf("step %d: %w", i+1, err)
		}

		traj.display = append(traj.display, round(raw))
		traj.raw = append(traj.raw, raw)
		running = raw
	}

	return traj, nil
}

func (e *Engine) predict(ctx context.Context, v features.Vector) (float64, error) {
	start := time.Now()

	raw, err := e.model.Predict(ctx, v)
	if err != nil {
		e.recordError("model", "predict_failed")
		return 0, fmt.Errorf("%w: %w", ErrPredictor, err)
	}

	if e.metrics != nil {
		e.metrics.RecordPredict(time.Since(start).Seconds())
	}
	return raw, nil
}

func (e *Engine) resolveTimestamp(s string) (time.Time, bool, error) {
	if s == "" {
		return e.currentHour(), false, nil
	}
	return parseTimestamp(s, e.loc)
}

func (e *Engine) currentHour() time.Time {
	return floorHour(e.now().In(e.loc))
}

func (e *Engine) saveSnapshot(ctx context.Context, s storage.Snapshot) {
	if e.snapshots == nil {
		return
	}
	if err := e.snapshots.Put(ctx, s); err != nil {
		e.recordError("store", "put_failed")
		e.logger.Warn("failed to store forecast snapshot", "kind", s.Kind, "error", err)
	}
}

func (e *Engine) journalEntry(ctx context.Context, entry recorder.Entry) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(ctx, entry); err != nil {
		e.recordError("recorder", "record_failed")
		e.logger.Warn("failed to journal prediction", "error", err)
	}
}

func (e *Engine) observeHistory() {
	if e.metrics != nil {
		e.metrics.SetHistoryLength(e.builder.HistoryLen())
	}
}

func (e *Engine) recordError(component, reason string) {
	if e.metrics != nil {
		e.metrics.RecordError(component, reason)
	}
}

func round(v float64) float64 {
	return scalar.Round(v, 2)
}
