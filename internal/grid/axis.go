package grid

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Axis is a canonical coordinate axis: strictly increasing bin centers.
type Axis struct {
	values []float64
	index  map[float64]int
}

// NewAxis validates values and returns the axis built from a copy of them.
func NewAxis(values []float64) (Axis, error) {
	if len(values) == 0 {
		return Axis{}, errors.New("axis has no values")
	}
	idx := make(map[float64]int, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Axis{}, fmt.Errorf("axis value %d is not finite", i)
		}
		if i > 0 && v <= values[i-1] {
			return Axis{}, fmt.Errorf("axis values must be unique and sorted: %v follows %v at %d", v, values[i-1], i)
		}
		idx[v] = i
	}
	return Axis{values: slices.Clone(values), index: idx}, nil
}

// Range builds the axis start, start+step, ... up to and including stop.
func Range(start, stop, step float64) (Axis, error) {
	if step <= 0 || stop < start {
		return Axis{}, fmt.Errorf("invalid axis range [%v, %v] step %v", start, stop, step)
	}
	n := int(math.Round((stop-start)/step)) + 1
	values := make([]float64, n)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	return NewAxis(values)
}

// Len returns the number of bins.
func (a Axis) Len() int {
	return len(a.values)
}

// Values returns a copy of the bin centers.
func (a Axis) Values() []float64 {
	return slices.Clone(a.values)
}

// Index returns the position of v on the axis. Matching is exact.
func (a Axis) Index(v float64) (int, bool) {
	i, ok := a.index[v]
	return i, ok
}
