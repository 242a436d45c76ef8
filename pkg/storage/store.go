// Package storage keeps the latest forecast produced for each forecast kind
// so dashboards can read it without triggering a new rollout.
package storage

import (
	"context"
	"regexp"
	"time"
)

// Forecast kinds stored by the engine.
const (
	KindDayAhead  = "24h"
	KindMultistep = "multistep"
)

var kindRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,62}[a-zA-Z0-9])?$`)

// Snapshot is one completed forecast.
type Snapshot struct {
	Kind        string    `json:"kind"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generatedAt"`

	// Start is the hour the rollout started from; Values[i] is the
	// prediction for Start + (i+1) hours.
	Start  time.Time `json:"start"`
	Values []float64 `json:"values,omitempty"`

	// Horizons maps a horizon label ("3h", "6h", ...) to its prediction.
	Horizons map[string]float64 `json:"horizons,omitempty"`
}

// Store persists the latest snapshot per kind.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, kind string) (Snapshot, bool, error)
}

// ValidKind reports whether kind is usable as a snapshot key.
func ValidKind(kind string) bool {
	return kindRegex.MatchString(kind)
}
