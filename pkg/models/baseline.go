package models

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/wattcast/pkg/features"
)

// Default BaselineModel weights.
const (
	DefaultSeasonalWeight = 0.3
	DefaultTrendDamping   = 0.5
)

// trendPoints are the lag features used for the trend fit, with their hour
// offset relative to the current reading (lag_1 is the current reading).
var trendPoints = [...]struct {
	field  int
	offset float64
}{
	{features.Lag12, -11},
	{features.Lag6, -5},
	{features.Lag1, 0},
}

// BaselineModel is a model-free predictor built only from the engineered
// features. It needs no artifact and is meant for smoke tests and as a
// reference when evaluating trained models.
//
// Algorithm:
//  1. Level: rolling_6h
//  2. Trend: least-squares line through lag_12, lag_6 and lag_1,
//     extrapolated one hour ahead and damped toward the level
//  3. Seasonality: lag_24 (same hour yesterday)
//  4. Forecast = w*seasonal + (1-w)*damped trend, clamped to >= 0
type BaselineModel struct {
	seasonalWeight float64
	trendDamping   float64
}

// NewBaselineModel creates a baseline model. seasonalWeight and trendDamping
// must lie in [0,1].
func NewBaselineModel(seasonalWeight, trendDamping float64) (*BaselineModel, error) {
	if seasonalWeight < 0 || seasonalWeight > 1 {
		return nil, fmt.Errorf("baseline: seasonal weight %v not in [0,1]", seasonalWeight)
	}
	if trendDamping < 0 || trendDamping > 1 {
		return nil, fmt.Errorf("baseline: trend damping %v not in [0,1]", trendDamping)
	}
	return &BaselineModel{seasonalWeight: seasonalWeight, trendDamping: trendDamping}, nil
}

// Name returns the model identifier.
func (m *BaselineModel) Name() string {
	return "baseline"
}

// Predict returns the next-hour estimate for v.
func (m *BaselineModel) Predict(ctx context.Context, v features.Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	level := v[features.Rolling6h]
	trend := m.trendForecast(v)
	damped := level + m.trendDamping*(trend-level)

	pred := m.seasonalWeight*v[features.Lag24] + (1-m.seasonalWeight)*damped
	if pred < 0 {
		pred = 0
	}
	return pred, nil
}

// trendForecast extrapolates the lag line to the next hour.
func (m *BaselineModel) trendForecast(v features.Vector) float64 {
	xs := make([]float64, len(trendPoints))
	ys := make([]float64, len(trendPoints))
	for i, p := range trendPoints {
		xs[i] = p.offset
		ys[i] = v[p.field]
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	return alpha + beta
}
