package grid

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_FiveMinuteHour(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	g := Build(start, start.Add(time.Hour), 5*time.Minute)

	require.Equal(t, 12, g.Len())
	assert.Equal(t, start, g.Start())
	assert.Equal(t, start.Add(55*time.Minute), g.Times()[11])
	assert.Equal(t, start.Add(time.Hour), g.End())
}

func TestBuild_Alignment(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		dt    time.Duration
		first int64
		n     int
	}{
		{"unaligned start rounds up", time.Unix(301, 0), time.Unix(1200, 0), 5 * time.Minute, 600, 2},
		{"unaligned end rounds up", time.Unix(0, 0), time.Unix(601, 0), 5 * time.Minute, 0, 3},
		{"sub-second start", time.Unix(3599, 500_000_000), time.Unix(7200, 0), time.Hour, 3600, 1},
		{"before epoch", time.Unix(-7, 0), time.Unix(6, 0), 5 * time.Second, -5, 3},
		{"empty after rounding", time.Unix(1, 0), time.Unix(299, 0), 5 * time.Minute, 0, 0},
		{"start after end", time.Unix(900, 0), time.Unix(0, 0), 5 * time.Minute, 0, 0},
		{"sub-second cadence", time.Unix(0, 0), time.Unix(10, 0), 500 * time.Millisecond, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := Build(tc.start, tc.end, tc.dt)
			require.Equal(t, tc.n, g.Len())
			if tc.n == 0 {
				return
			}
			assert.Equal(t, tc.first, g.Unix[0])
			step := int64(tc.dt / time.Second)
			for i, u := range g.Unix {
				assert.Zero(t, ((u%step)+step)%step, "timestamp %d not aligned", i)
				if i > 0 {
					assert.Equal(t, step, u-g.Unix[i-1])
				}
			}
			assert.Less(t, g.Unix[g.Len()-1], ceilMultiple(tc.end, step))
		})
	}
}

func TestNewAxis(t *testing.T) {
	a, err := NewAxis([]float64{10, 20, 30, 40})
	require.NoError(t, err)
	assert.Equal(t, 4, a.Len())

	i, ok := a.Index(30)
	assert.True(t, ok)
	assert.Equal(t, 2, i)
	_, ok = a.Index(25)
	assert.False(t, ok)

	_, err = NewAxis([]float64{1, 1, 2})
	assert.Error(t, err)
	_, err = NewAxis([]float64{2, 1})
	assert.Error(t, err)
	_, err = NewAxis(nil)
	assert.Error(t, err)
	_, err = NewAxis([]float64{math.NaN()})
	assert.Error(t, err)
}

func TestRange(t *testing.T) {
	a, err := Range(-90, 90, 1)
	require.NoError(t, err)
	assert.Equal(t, 181, a.Len())
	assert.Equal(t, -90.0, a.Values()[0])
	assert.Equal(t, 90.0, a.Values()[180])

	_, err = Range(0, 1, 0)
	assert.Error(t, err)
}

func TestArray(t *testing.T) {
	a := NewMissing(2, 3, 4)
	assert.Equal(t, 24, a.CountMissing())
	assert.Equal(t, 12, a.RowLen())

	a.Set(7, 1, 2, 3)
	assert.Equal(t, 7.0, a.At(1, 2, 3))
	assert.Equal(t, 7.0, a.Row(1)[11])
	assert.Equal(t, 23, a.Offset(1, 2, 3))

	b := NewArray(3, 2)
	b.Set(5, 2, 1)
	assert.Equal(t, []float64{0, 0, 5}, b.Column(1))
	assert.Panics(t, func() { b.At(1) })
}
