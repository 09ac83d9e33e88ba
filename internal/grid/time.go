// Package grid holds the canonical sampling grids shared by the regridding
// pipeline: the reference time axis, the spatial coordinate axes and the dense
// arrays laid over them.
package grid

import "time"

// TimeGrid is a uniform, cadence-aligned sequence of timestamps. Unix holds
// seconds since the epoch; every value is a multiple of Step.
type TimeGrid struct {
	Step time.Duration
	Unix []int64
}

// Build returns the grid covering [start, end) at cadence dt. Both bounds are
// rounded up to the next multiple of dt. dt is truncated to whole seconds and
// a cadence under one second yields an empty grid.
func Build(start, end time.Time, dt time.Duration) TimeGrid {
	step := int64(dt / time.Second)
	g := TimeGrid{Step: time.Duration(step) * time.Second}
	if step <= 0 {
		return g
	}
	first := ceilMultiple(start, step)
	last := ceilMultiple(end, step)
	if first >= last {
		return g
	}
	g.Unix = make([]int64, 0, (last-first)/step)
	for t := first; t < last; t += step {
		g.Unix = append(g.Unix, t)
	}
	return g
}

// ceilMultiple rounds t up to the next multiple of step seconds. Fractions of
// a second count, so 00:00:00.5 with a 1s step becomes 00:00:01.
func ceilMultiple(t time.Time, step int64) int64 {
	sec := t.Unix()
	if t.Nanosecond() > 0 {
		sec++
	}
	q := sec / step
	if sec%step != 0 && sec > 0 {
		q++
	}
	return q * step
}

// Len returns the number of timestamps.
func (g TimeGrid) Len() int {
	return len(g.Unix)
}

// Times returns the grid as UTC times.
func (g TimeGrid) Times() []time.Time {
	ts := make([]time.Time, len(g.Unix))
	for i, u := range g.Unix {
		ts[i] = time.Unix(u, 0).UTC()
	}
	return ts
}

// Start returns the first timestamp, or the zero time for an empty grid.
func (g TimeGrid) Start() time.Time {
	if len(g.Unix) == 0 {
		return time.Time{}
	}
	return time.Unix(g.Unix[0], 0).UTC()
}

// End returns the exclusive end of the grid: one step past the last timestamp.
func (g TimeGrid) End() time.Time {
	if len(g.Unix) == 0 {
		return time.Time{}
	}
	return time.Unix(g.Unix[len(g.Unix)-1], 0).UTC().Add(g.Step)
}
