// Package metrics provides Prometheus metrics instrumentation for the forecaster.
//
// Metrics exposed:
//   - wattcast_model_predict_seconds: Histogram of single predictor calls
//   - wattcast_operation_seconds: Histogram of whole operations by name
//   - wattcast_operations_total: Counter of completed operations by name
//   - wattcast_history_length: Gauge of observations in the usage history
//   - wattcast_predicted_value: Gauge of the last next-hour prediction
//   - wattcast_model_loaded: Gauge, 1 when a model is loaded
//   - wattcast_errors_total: Counter of errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	ModelPredictSeconds prometheus.Histogram
	OperationSeconds    *prometheus.HistogramVec
	OperationsTotal     *prometheus.CounterVec
	HistoryLength       prometheus.Gauge
	PredictedValue      prometheus.Gauge
	ModelLoaded         prometheus.Gauge
	ErrorsTotal         *prometheus.CounterVec
}

// New registers all metrics with reg. A nil reg uses the default registerer.
func New(model string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ModelPredictSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "wattcast_model_predict_seconds",
			Help: "Time spent in a single predictor call",
			ConstLabels: prometheus.Labels{
				"model": model,
			},
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),

		OperationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wattcast_operation_seconds",
			Help:    "Time spent serving a forecast operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wattcast_operations_total",
			Help: "Completed forecast operations",
		}, []string{"operation"}),

		HistoryLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wattcast_history_length",
			Help: "Observations currently held in the usage history",
		}),

		PredictedValue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wattcast_predicted_value",
			Help: "Last next-hour energy usage prediction",
		}),

		ModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wattcast_model_loaded",
			Help: "1 when a model is loaded, 0 otherwise",
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wattcast_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordPredict records the time spent in one predictor call.
func (m *Metrics) RecordPredict(seconds float64) {
	m.ModelPredictSeconds.Observe(seconds)
}

// RecordOperation records a completed operation and its duration.
func (m *Metrics) RecordOperation(operation string, seconds float64) {
	m.OperationSeconds.WithLabelValues(operation).Observe(seconds)
	m.OperationsTotal.WithLabelValues(operation).Inc()
}

// SetHistoryLength sets the usage history length.
func (m *Metrics) SetHistoryLength(n int) {
	m.HistoryLength.Set(float64(n))
}

// SetPredictedValue sets the last predicted value.
func (m *Metrics) SetPredictedValue(value float64) {
	m.PredictedValue.Set(value)
}

// SetModelLoaded records whether a model is loaded.
func (m *Metrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.ModelLoaded.Set(1)
		return
	}
	m.ModelLoaded.Set(0)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
