// Package features turns a usage observation, its timestamp and the
// exogenous weather readings into the fixed-order numeric vector the
// energy model was trained on.
package features

// Field indexes into a Vector. The order is the model's input schema and
// must not change.
const (
	Hour = iota
	DayOfWeek
	IsWeekend
	Month
	DayOfYear
	HourSin
	HourCos
	DowSin
	DowCos
	MonthSin
	MonthCos
	Temperature
	Humidity
	TempChange
	HumidityChange
	Lag1
	Lag6
	Lag12
	Lag24
	Lag48
	Lag72
	Rolling6h
	Rolling12h
	Rolling24h
	Rolling7d
	Rolling24hStd
	Rolling7dStd

	NumFeatures
)

// Names holds the column name of every field, in schema order.
var Names = [NumFeatures]string{
	Hour:           "hour",
	DayOfWeek:      "dayofweek",
	IsWeekend:      "is_weekend",
	Month:          "month",
	DayOfYear:      "dayofyear",
	HourSin:        "hour_sin",
	HourCos:        "hour_cos",
	DowSin:         "dow_sin",
	DowCos:         "dow_cos",
	MonthSin:       "month_sin",
	MonthCos:       "month_cos",
	Temperature:    "temperature_C",
	Humidity:       "humidity_pct",
	TempChange:     "temp_change",
	HumidityChange: "humidity_change",
	Lag1:           "lag_1",
	Lag6:           "lag_6",
	Lag12:          "lag_12",
	Lag24:          "lag_24",
	Lag48:          "lag_48",
	Lag72:          "lag_72",
	Rolling6h:      "rolling_6h",
	Rolling12h:     "rolling_12h",
	Rolling24h:     "rolling_24h",
	Rolling7d:      "rolling_7d",
	Rolling24hStd:  "rolling_24h_std",
	Rolling7dStd:   "rolling_7d_std",
}

var nameIndex = func() map[string]int {
	m := make(map[string]int, NumFeatures)
	for i, n := range Names {
		m[n] = i
	}
	return m
}()

// Index returns the position of the named field.
func Index(name string) (int, bool) {
	i, ok := nameIndex[name]
	return i, ok
}

// Vector is one model input row. Fields never set are 0.
type Vector [NumFeatures]float64

// Get returns the value of the named field.
func (v Vector) Get(name string) (float64, bool) {
	i, ok := nameIndex[name]
	if !ok {
		return 0, false
	}
	return v[i], true
}

// Values returns the fields as a slice in schema order.
func (v Vector) Values() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v[:])
	return out
}

// Map returns the fields keyed by column name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, NumFeatures)
	for i, n := range Names {
		m[n] = v[i]
	}
	return m
}
