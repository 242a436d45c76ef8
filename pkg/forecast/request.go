package forecast

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Payload field names.
const (
	FieldCurrentUsage = "current_energy_usage"
	FieldTemperature  = "temperature_C"
	FieldHumidity     = "humidity_pct"
	FieldTimestamp    = "timestamp"
)

// Request carries one observation. Timestamp is optional; empty means the
// current hour.
type Request struct {
	CurrentUsage float64
	Temperature  float64
	Humidity     float64
	Timestamp    string
}

// DecodeRequest validates a JSON payload before anything touches the
// engine's state. Every required field must be present and a JSON number;
// timestamp, when present, must be a string.
func DecodeRequest(body []byte) (Request, error) {
	return decode(body, true)
}

// DecodeObservation is DecodeRequest for rollouts, which always start from
// the current hour: any timestamp field is ignored.
func DecodeObservation(body []byte) (Request, error) {
	return decode(body, false)
}

func decode(body []byte, withTimestamp bool) (Request, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return Request{}, invalidPayload("empty body")
	}
	if !gjson.ValidBytes(body) {
		return Request{}, invalidPayload("body is not valid JSON")
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Request{}, invalidPayload("body must be a JSON object")
	}

	var r Request
	required := []struct {
		name string
		dst  *float64
	}{
		{FieldCurrentUsage, &r.CurrentUsage},
		{FieldTemperature, &r.Temperature},
		{FieldHumidity, &r.Humidity},
	}
	for _, f := range required {
		res := root.Get(f.name)
		if !res.Exists() || res.Type == gjson.Null {
			return Request{}, invalidPayload("missing field %q", f.name)
		}
		if res.Type != gjson.Number {
			return Request{}, invalidPayload("field %q must be a number, got %s", f.name, res.Type)
		}
		*f.dst = res.Float()
	}

	if !withTimestamp {
		return r, nil
	}

	if ts := root.Get(FieldTimestamp); ts.Exists() && ts.Type != gjson.Null {
		if ts.Type != gjson.String {
			return Request{}, fmt.Errorf("%w: %s must be a string", ErrInvalidTimestamp, FieldTimestamp)
		}
		r.Timestamp = ts.Str
	}

	return r, nil
}

var timestampLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02T15:04Z07:00", true},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04:05.999999999Z07:00", true},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02 15:04Z07:00", true},
	{"2006-01-02 15:04", false},
	{"2006-01-02T15", false},
	{"2006-01-02", false},
}

// ParseTimestamp accepts ISO-8601 style date-times with or without seconds,
// a zone offset or a time part. Values without an offset are read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	t, _, err := parseTimestamp(s, loc)
	return t, err
}

// parseTimestamp also reports whether s carried its own offset.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	for _, l := range timestampLayouts {
		if t, err := time.ParseInLocation(l.layout, s, loc); err == nil {
			return t, l.zoned, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// floorHour truncates t to the start of its hour in t's location.
func floorHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
