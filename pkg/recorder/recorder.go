// Package recorder journals served predictions together with the feature
// vector they were computed from, so the model can be evaluated and
// retrained offline. The journal is write-only from the forecaster's point
// of view; nothing is ever read back into the usage history.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/HatiCode/wattcast/pkg/features"
)

// Entry is one journaled prediction.
type Entry struct {
	ID          string
	Timestamp   time.Time
	Usage       float64
	Temperature float64
	Humidity    float64
	Vector      features.Vector
	Prediction  float64
	Model       string
}

// Recorder stores prediction entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// SQLRecorder writes entries to a SQL database through sqlx. Supported
// drivers are "sqlite3" and "postgres".
type SQLRecorder struct {
	db     *sqlx.DB
	driver string
}

type entryRow struct {
	ID          string    `db:"id"`
	Timestamp   time.Time `db:"ts"`
	Usage       float64   `db:"current_usage"`
	Temperature float64   `db:"temperature_c"`
	Humidity    float64   `db:"humidity_pct"`
	Features    string    `db:"features"`
	Prediction  float64   `db:"prediction"`
	Model       string    `db:"model"`
	RecordedAt  time.Time `db:"recorded_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id            TEXT PRIMARY KEY,
	ts            TIMESTAMP NOT NULL,
	current_usage DOUBLE PRECISION NOT NULL,
	temperature_c DOUBLE PRECISION NOT NULL,
	humidity_pct  DOUBLE PRECISION NOT NULL,
	features      TEXT NOT NULL,
	prediction    DOUBLE PRECISION NOT NULL,
	model         TEXT NOT NULL,
	recorded_at   TIMESTAMP NOT NULL
)`

const insertEntry = `
INSERT INTO predictions (
	id, ts, current_usage, temperature_c, humidity_pct,
	features, prediction, model, recorded_at
) VALUES (
	:id, :ts, :current_usage, :temperature_c, :humidity_pct,
	:features, :prediction, :model, :recorded_at
)`

// Open connects to dsn and creates the predictions table if needed.
// The driver is taken from the DSN scheme: "postgres://..." or
// "postgresql://..." selects postgres, "sqlite://path" or a bare path
// selects sqlite3.
func Open(ctx context.Context, dsn string) (*SQLRecorder, error) {
	if dsn == "" {
		return nil, errors.New("recorder: dsn cannot be empty")
	}

	driver, source := parseDSN(dsn)

	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: connect %s: %w", driver, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: create schema: %w", err)
	}

	return &SQLRecorder{db: db, driver: driver}, nil
}

func parseDSN(dsn string) (driver, source string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://")
	default:
		return "sqlite3", dsn
	}
}

// Driver returns the database driver in use.
func (r *SQLRecorder) Driver() string {
	return r.driver
}

// Record inserts e. An empty ID is replaced by a random UUID.
func (r *SQLRecorder) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	vec, err := json.Marshal(e.Vector.Map())
	if err != nil {
		return fmt.Errorf("recorder: marshal features: %w", err)
	}

	row := entryRow{
		ID:          e.ID,
		Timestamp:   e.Timestamp.UTC(),
		Usage:       e.Usage,
		Temperature: e.Temperature,
		Humidity:    e.Humidity,
		Features:    string(vec),
		Prediction:  e.Prediction,
		Model:       e.Model,
		RecordedAt:  time.Now().UTC(),
	}

	if _, err := r.db.NamedExecContext(ctx, insertEntry, row); err != nil {
		return fmt.Errorf("recorder: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest recorded first.
func (r *SQLRecorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []entryRow
	query := r.db.Rebind(`SELECT * FROM predictions ORDER BY recorded_at DESC, ts DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("recorder: select: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		var m map[string]float64
		if err := json.Unmarshal([]byte(row.Features), &m); err != nil {
			return nil, fmt.Errorf("recorder: entry %s: decode features: %w", row.ID, err)
		}
		var v features.Vector
		for name, val := range m {
			if i, ok := features.Index(name); ok {
				v[i] = val
			}
		}
		entries = append(entries, Entry{
			ID:          row.ID,
			Timestamp:   row.Timestamp,
			Usage:       row.Usage,
			Temperature: row.Temperature,
			Humidity:    row.Humidity,
			Vector:      v,
			Prediction:  row.Prediction,
			Model:       row.Model,
		})
	}
	return entries, nil
}

// Close closes the database.
func (r *SQLRecorder) Close() error {
	return r.db.Close()
}
