package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Request
		wantErr error
	}{
		{
			name: "all fields",
			body: `{"current_energy_usage": 300, "temperature_C": 12.5, "humidity_pct": 60, "timestamp": "2025-11-19T14:00:00"}`,
			want: Request{CurrentUsage: 300, Temperature: 12.5, Humidity: 60, Timestamp: "2025-11-19T14:00:00"},
		},
		{
			name: "timestamp omitted",
			body: `{"current_energy_usage": 1, "temperature_C": 2, "humidity_pct": 3}`,
			want: Request{CurrentUsage: 1, Temperature: 2, Humidity: 3},
		},
		{
			name: "null timestamp",
			body: `{"current_energy_usage": 1, "temperature_C": 2, "humidity_pct": 3, "timestamp": null}`,
			want: Request{CurrentUsage: 1, Temperature: 2, Humidity: 3},
		},
		{
			name:    "missing humidity",
			body:    `{"current_energy_usage": 1, "temperature_C": 2}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "string usage",
			body:    `{"current_energy_usage": "1", "temperature_C": 2, "humidity_pct": 3}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "null temperature",
			body:    `{"current_energy_usage": 1, "temperature_C": null, "humidity_pct": 3}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "not json",
			body:    `current_energy_usage=1`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "array body",
			body:    `[1, 2, 3]`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "empty body",
			body:    ``,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "numeric timestamp",
			body:    `{"current_energy_usage": 1, "temperature_C": 2, "humidity_pct": 3, "timestamp": 1700000000}`,
			wantErr: ErrInvalidTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.body))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRequest_ErrorNamesField(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"current_energy_usage": 1, "temperature_C": 2}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), FieldHumidity)
}

func TestParseTimestamp(t *testing.T) {
	loc := time.FixedZone("CET", 3600)

	tests := []struct {
		in    string
		want  time.Time
		zoned bool
	}{
		{in: "2025-11-19T14:00:00", want: time.Date(2025, 11, 19, 14, 0, 0, 0, loc)},
		{in: "2025-11-19 14:00:00", want: time.Date(2025, 11, 19, 14, 0, 0, 0, loc)},
		{in: "2025-11-19T14:30", want: time.Date(2025, 11, 19, 14, 30, 0, 0, loc)},
		{in: "2025-11-19 14:30", want: time.Date(2025, 11, 19, 14, 30, 0, 0, loc)},
		{in: "2025-11-19", want: time.Date(2025, 11, 19, 0, 0, 0, 0, loc)},
		{in: "2025-11-19T14:00:00Z", want: time.Date(2025, 11, 19, 14, 0, 0, 0, time.UTC), zoned: true},
		{in: "2025-11-19T14:00:00+09:00", want: time.Date(2025, 11, 19, 5, 0, 0, 0, time.UTC), zoned: true},
		{in: "2025-11-19 14:00:00+01:00", want: time.Date(2025, 11, 19, 13, 0, 0, 0, time.UTC), zoned: true},
		{in: "2025-11-19T14:00Z", want: time.Date(2025, 11, 19, 14, 0, 0, 0, time.UTC), zoned: true},
		{in: "2025-11-19T14:00+05:30", want: time.Date(2025, 11, 19, 8, 30, 0, 0, time.UTC), zoned: true},
		{in: "2025-11-19 14:00-03:00", want: time.Date(2025, 11, 19, 17, 0, 0, 0, time.UTC), zoned: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, zoned, err := parseTimestamp(tt.in, loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
			assert.Equal(t, tt.zoned, zoned)

			exported, err := ParseTimestamp(tt.in, loc)
			require.NoError(t, err)
			assert.True(t, got.Equal(exported))
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, in := range []string{"", "yesterday", "2025-13-01T00:00:00", "19/11/2025"} {
		_, err := ParseTimestamp(in, time.UTC)
		assert.ErrorIs(t, err, ErrInvalidTimestamp, in)
	}
}

func TestFloorHour(t *testing.T) {
	got := floorHour(time.Date(2025, 11, 19, 14, 59, 59, 999, time.UTC))
	assert.Equal(t, time.Date(2025, 11, 19, 14, 0, 0, 0, time.UTC), got)
}

func TestDecodeObservation_IgnoresTimestamp(t *testing.T) {
	got, err := DecodeObservation([]byte(`{"current_energy_usage": 1, "temperature_C": 2, "humidity_pct": 3, "timestamp": 17}`))
	require.NoError(t, err)
	assert.Equal(t, Request{CurrentUsage: 1, Temperature: 2, Humidity: 3}, got)

	_, err = DecodeObservation([]byte(`{"current_energy_usage": 1, "temperature_C": 2}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
