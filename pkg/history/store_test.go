package history

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, DefaultCapacity, New(-5).Capacity())
	assert.Equal(t, 12, New(12).Capacity())
}

func TestStore_Empty(t *testing.T) {
	s := New(DefaultCapacity)

	assert.Equal(t, 0, s.Len())
	for _, k := range []int{1, 6, 72} {
		assert.Equal(t, 0.0, s.Lag(k), "lag %d", k)
	}
	for _, w := range []int{1, 6, 24, 168, 1000} {
		assert.Equal(t, 0.0, s.RollingMean(w), "mean %d", w)
		assert.Equal(t, 0.0, s.RollingStd(w), "std %d", w)
	}
}

func TestStore_Lag(t *testing.T) {
	s := New(DefaultCapacity)
	for _, v := range []float64{10, 20, 30, 40} {
		s.Record(v)
	}

	tests := []struct {
		k    int
		want float64
	}{
		{k: 1, want: 40},
		{k: 2, want: 30},
		{k: 4, want: 10},
		{k: 5, want: 10},
		{k: 72, want: 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Lag(tt.k), "lag %d", tt.k)
	}
}

func TestStore_Rolling(t *testing.T) {
	s := New(DefaultCapacity)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		s.Record(v)
	}

	assert.InDelta(t, 5.0, s.RollingMean(8), 1e-12)
	assert.InDelta(t, 5.0, s.RollingMean(100), 1e-12, "window larger than history uses all values")
	assert.InDelta(t, 2.0, s.RollingStd(8), 1e-12, "population std of the classic sample")
	assert.InDelta(t, 7.0, s.RollingMean(3), 1e-12)
	assert.InDelta(t, math.Sqrt(8.0/3.0), s.RollingStd(3), 1e-12)
}

func TestStore_SingleValueStd(t *testing.T) {
	s := New(DefaultCapacity)
	s.Record(300)

	assert.Equal(t, 300.0, s.RollingMean(6))
	assert.Equal(t, 0.0, s.RollingStd(24))
}

func TestStore_Eviction(t *testing.T) {
	s := New(DefaultCapacity)
	for i := 0; i < 301; i++ {
		s.Record(float64(i))
		require.LessOrEqual(t, s.Len(), DefaultCapacity)
	}

	values := s.Values()
	require.Len(t, values, DefaultCapacity)
	assert.Equal(t, 1.0, values[0], "oldest value must be evicted first")
	assert.Equal(t, 300.0, values[len(values)-1])
	assert.NotContains(t, values, 0.0)
	assert.Equal(t, 1.0, s.Lag(1000))
}

func TestStore_ValuesIsCopy(t *testing.T) {
	s := New(4)
	s.Record(1)

	v := s.Values()
	v[0] = 99

	assert.Equal(t, 1.0, s.Lag(1))
}

func TestStore_ConcurrentRecord(t *testing.T) {
	s := New(50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Record(float64(i))
				_ = s.RollingStd(24)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
}
