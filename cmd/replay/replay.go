package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/wattcast/pkg/forecast"
)

// Observation is one hourly reading sent to the forecaster.
type Observation struct {
	Timestamp   time.Time
	Usage       float64
	Temperature float64
	Humidity    float64
}

// Pattern generates synthetic hourly usage.
type Pattern struct {
	Name        string
	Description string
	Usage       func(t time.Time) float64
}

var patterns = map[string]Pattern{
	"constant": {
		Name:        "Constant",
		Description: "Flat 250 kWh",
		Usage: func(time.Time) float64 {
			return 250
		},
	},
	"business-hours": {
		Name:        "Business Hours",
		Description: "High during 9-17 on weekdays, low otherwise",
		Usage: func(t time.Time) float64 {
			if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
				return 120
			}
			if h := t.Hour(); h >= 9 && h < 17 {
				return 300 + 80*math.Sin(float64(h-9)*math.Pi/8)
			}
			return 140
		},
	},
	"daily-sine": {
		Name:        "Daily Sine",
		Description: "Smooth 24h cycle peaking mid-afternoon",
		Usage: func(t time.Time) float64 {
			return 220 + 90*math.Sin(float64(t.Hour()-9)*math.Pi/12)
		},
	},
	"double-peak": {
		Name:        "Double Peak",
		Description: "Morning and evening peaks (8am, 7pm)",
		Usage: func(t time.Time) float64 {
			h := float64(t.Hour())
			morning := math.Exp(-math.Pow(h-8, 2) / 4)
			evening := math.Exp(-math.Pow(h-19, 2) / 4)
			return 150 + 200*math.Max(morning, evening)
		},
	},
}

// Generate returns hours observations from start using p. Weather follows
// a daily cycle: warmest and driest at 15:00.
func Generate(p Pattern, start time.Time, hours int) []Observation {
	out := make([]Observation, 0, hours)
	for i := 0; i < hours; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		phase := float64(ts.Hour()-9) * math.Pi / 12
		out = append(out, Observation{
			Timestamp:   ts,
			Usage:       p.Usage(ts),
			Temperature: 12 + 6*math.Sin(phase),
			Humidity:    65 - 15*math.Sin(phase),
		})
	}
	return out
}

// ReadCSV parses observations with a header row naming at least
// timestamp, current_energy_usage, temperature_C and humidity_pct.
func ReadCSV(r io.Reader, loc *time.Location) ([]Observation, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	required := []string{forecast.FieldTimestamp, forecast.FieldCurrentUsage, forecast.FieldTemperature, forecast.FieldHumidity}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var out []Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := forecast.ParseTimestamp(rec[cols[forecast.FieldTimestamp]], loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var nums [3]float64
		for i, name := range required[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, name, err)
			}
			nums[i] = v
		}

		out = append(out, Observation{Timestamp: ts, Usage: nums[0], Temperature: nums[1], Humidity: nums[2]})
	}
	return out, nil
}

// Client posts observations to a forecaster.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the forecaster at baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, logger: logger}
}

// WaitReady polls /readyz until it answers 200 or attempts run out.
func (c *Client) WaitReady(ctx context.Context, attempts int, interval time.Duration) error {
	c.logger.Info("waiting for forecaster", "url", c.baseURL)

	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				c.logger.Info("forecaster is ready")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("forecaster at %s not ready after %d attempts", c.baseURL, attempts)
}

// Send posts one observation to /api/predict and returns the prediction.
func (c *Client) Send(ctx context.Context, o Observation) (float64, error) {
	body, err := json.Marshal(map[string]any{
		forecast.FieldCurrentUsage: o.Usage,
		forecast.FieldTemperature:  o.Temperature,
		forecast.FieldHumidity:     o.Humidity,
		forecast.FieldTimestamp:    o.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/predict", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post observation: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(data, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return 0, fmt.Errorf("forecaster returned %d: %s", resp.StatusCode, msg)
	}

	v := gjson.GetBytes(data, "predicted_energy_next_hour")
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("response missing predicted_energy_next_hour: %s", data)
	}
	return v.Float(), nil
}

// Summary reports the outcome of a replay.
type Summary struct {
	Sent           int
	Failed         int
	LastPrediction float64
}

// Replay sends obs in order, pausing pace between requests. Observations
// that fail are counted and skipped; a canceled ctx stops the replay.
func (c *Client) Replay(ctx context.Context, obs []Observation, pace time.Duration) (Summary, error) {
	var s Summary
	for i, o := range obs {
		if err := ctx.Err(); err != nil {
			return s, err
		}

		pred, err := c.Send(ctx, o)
		if err != nil {
			s.Failed++
			c.logger.Warn("observation rejected", "index", i, "timestamp", o.Timestamp, "error", err)
		} else {
			s.Sent++
			s.LastPrediction = pred
			c.logger.Debug("observation sent", "timestamp", o.Timestamp, "usage", o.Usage, "prediction", pred)
		}

		if pace > 0 && i < len(obs)-1 {
			select {
			case <-ctx.Done():
				return s, ctx.Err()
			case <-time.After(pace):
			}
		}
	}
	return s, nil
}
