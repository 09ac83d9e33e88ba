// Package regrid aligns source archive records onto a reference time grid and
// the canonical coordinate axes.
package regrid

import (
	"gonum.org/v1/gonum/floats"

	"github.com/rtm0/tecgrid/internal/grid"
)

// AxisMap relates one spatial axis of a file to the canonical axis.
type AxisMap struct {
	// Conforming is set when the file axis equals the canonical axis
	// element-wise; Index is then the identity.
	Conforming bool
	// Index maps each file position to a canonical position, or -1 when the
	// file coordinate is not on the canonical axis.
	Index   []int
	Matched int
	Dropped int
}

// CheckAxis compares a file's coordinate values with the canonical axis.
func CheckAxis(file []float64, canonical grid.Axis) AxisMap {
	m := AxisMap{Index: make([]int, len(file))}
	if floats.Equal(file, canonical.Values()) {
		m.Conforming = true
		for i := range m.Index {
			m.Index[i] = i
		}
		m.Matched = len(file)
		return m
	}
	for i, v := range file {
		j, ok := canonical.Index(v)
		if !ok {
			m.Index[i] = -1
			m.Dropped++
			continue
		}
		m.Index[i] = j
		m.Matched++
	}
	return m
}

// conforming reports whether every map is conforming, so a record can be
// copied row by row.
func conforming(maps []AxisMap) bool {
	for _, m := range maps {
		if !m.Conforming {
			return false
		}
	}
	return true
}
