package features

import (
	"math"
	"time"

	"github.com/HatiCode/wattcast/pkg/history"
)

var (
	lagOffsets = [...]struct {
		field, k int
	}{
		{Lag1, 1}, {Lag6, 6}, {Lag12, 12}, {Lag24, 24}, {Lag48, 48}, {Lag72, 72},
	}

	rollingMeans = [...]struct {
		field, window int
	}{
		{Rolling6h, 6}, {Rolling12h, 12}, {Rolling24h, 24}, {Rolling7d, 24 * 7},
	}

	rollingStds = [...]struct {
		field, window int
	}{
		{Rolling24hStd, 24}, {Rolling7dStd, 24 * 7},
	}
)

// Builder derives feature vectors and owns the usage history they read.
// Every Build call records its usage value first, so the current reading
// is part of its own rolling statistics and becomes lag_1 of the next call.
type Builder struct {
	history *history.Store
}

// NewBuilder creates a Builder over h. A nil h gets a fresh store with
// history.DefaultCapacity.
func NewBuilder(h *history.Store) *Builder {
	if h == nil {
		h = history.New(history.DefaultCapacity)
	}
	return &Builder{history: h}
}

// Build records usage and returns the vector for ts.
func (b *Builder) Build(usage, temperature, humidity float64, ts time.Time) Vector {
	b.history.Record(usage)

	var v Vector

	hour := ts.Hour()
	dow := dayOfWeek(ts)
	month := int(ts.Month())

	v[Hour] = float64(hour)
	v[DayOfWeek] = float64(dow)
	if dow >= 5 {
		v[IsWeekend] = 1
	}
	v[Month] = float64(month)
	v[DayOfYear] = float64(ts.YearDay())

	v[HourSin], v[HourCos] = cyclical(hour, 24)
	v[DowSin], v[DowCos] = cyclical(dow, 7)
	v[MonthSin], v[MonthCos] = cyclical(month, 12)

	v[Temperature] = temperature
	v[Humidity] = humidity
	// No previous weather reading is tracked; the model was trained with
	// these deltas pinned to zero.
	v[TempChange] = 0
	v[HumidityChange] = 0

	for _, l := range lagOffsets {
		v[l.field] = b.history.Lag(l.k)
	}
	for _, r := range rollingMeans {
		v[r.field] = b.history.RollingMean(r.window)
	}
	for _, r := range rollingStds {
		v[r.field] = b.history.RollingStd(r.window)
	}

	return v
}

// HistoryLen returns the number of observations currently held.
func (b *Builder) HistoryLen() int {
	return b.history.Len()
}

// dayOfWeek maps time.Weekday onto Monday=0 ... Sunday=6.
func dayOfWeek(ts time.Time) int {
	return (int(ts.Weekday()) + 6) % 7
}

func cyclical(v, period int) (float64, float64) {
	angle := 2 * math.Pi * float64(v) / float64(period)
	return math.Sin(angle), math.Cos(angle)
}
