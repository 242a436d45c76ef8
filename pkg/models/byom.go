package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/wattcast/pkg/features"
)

// DefaultValuePath is the gjson path of the prediction in a BYOM response.
const DefaultValuePath = "prediction"

// BYOMModel delegates predictions to an external HTTP model server, so any
// model family (a Python XGBoost process, a TF Serving proxy, ...) can sit
// behind the forecaster.
//
// Request body:
//
//	{"columns": ["hour", ...], "values": [14, ...], "features": {"hour": 14, ...}}
//
// The scalar is read from the response with a gjson path, e.g.
// "prediction" for {"prediction": 123.4} or "predictions.0" for
// {"predictions": [123.4]}.
type BYOMModel struct {
	endpoint  string
	name      string
	valuePath string
	client    *http.Client
}

type byomRequest struct {
	Columns  []string           `json:"columns"`
	Values   []float64          `json:"values"`
	Features map[string]float64 `json:"features"`
}

// NewBYOMModel creates a model backed by the server at endpoint. A nil
// client gets a default one with a 30s timeout.
func NewBYOMModel(endpoint, name, valuePath string, client *http.Client) *BYOMModel {
	if name == "" {
		name = "byom"
	}
	if valuePath == "" {
		valuePath = DefaultValuePath
	}
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		}
	}

	return &BYOMModel{
		endpoint:  endpoint,
		name:      name,
		valuePath: valuePath,
		client:    client,
	}
}

// Name returns the model identifier.
func (m *BYOMModel) Name() string {
	return m.name
}

// Predict posts v to the model server and returns the extracted scalar.
func (m *BYOMModel) Predict(ctx context.Context, v features.Vector) (float64, error) {
	body, err := json.Marshal(byomRequest{
		Columns:  features.Names[:],
		Values:   v.Values(),
		Features: v.Map(),
	})
	if err != nil {
		return 0, fmt.Errorf("byom: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("byom: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("byom: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("byom: http %d: %s", resp.StatusCode, string(msg))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("byom: read response: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return 0, fmt.Errorf("byom: response is not valid JSON")
	}

	res := gjson.GetBytes(data, m.valuePath)
	if !res.Exists() {
		return 0, fmt.Errorf("byom: path %q not found in response", m.valuePath)
	}
	if res.Type != gjson.Number {
		return 0, fmt.Errorf("byom: path %q is %s, want number", m.valuePath, res.Type)
	}

	return res.Float(), nil
}
