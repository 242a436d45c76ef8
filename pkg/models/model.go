// Package models defines the predictor capability the forecast engine
// consumes and the implementations the forecaster can load.
//
// A Model is a point regressor: it maps one fixed-order feature vector to
// one scalar. It knows nothing about history or multi-step rollouts; the
// engine drives those by calling Predict repeatedly.
//
// Available models:
//   - XGBoostModel:  gradient boosted trees evaluated from an XGBoost JSON dump
//   - BYOMModel:     delegates to an external HTTP model server
//   - BaselineModel: level, trend and daily seasonality read off the features
package models

import (
	"context"

	"github.com/HatiCode/wattcast/pkg/features"
)

// Model predicts next-hour energy usage from a feature vector.
type Model interface {
	// Name returns the identifier reported to clients (e.g. "xgboost").
	Name() string

	// Predict returns the model output for v. Errors are not retried by callers.
	Predict(ctx context.Context, v features.Vector) (float64, error)
}

// Func adapts a plain function to the Model interface.
type Func struct {
	ID string
	Fn func(features.Vector) (float64, error)
}

// Name returns f.ID.
func (f Func) Name() string { return f.ID }

// Predict calls f.Fn.
func (f Func) Predict(_ context.Context, v features.Vector) (float64, error) {
	return f.Fn(v)
}
