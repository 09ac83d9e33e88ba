package grid

import (
	"fmt"
	"math"
)

// Missing marks a cell no source sample contributed to.
var Missing = math.NaN()

// IsMissing reports whether v is the missing-data sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Array is a dense row-major N-d float64 buffer.
type Array struct {
	Shape []int
	Data  []float64
}

// NewArray returns a zeroed array of the given shape.
func NewArray(shape ...int) Array {
	return Array{Shape: append([]int(nil), shape...), Data: make([]float64, size(shape))}
}

// NewMissing returns an array of the given shape with every cell missing.
func NewMissing(shape ...int) Array {
	a := NewArray(shape...)
	for i := range a.Data {
		a.Data[i] = Missing
	}
	return a
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Rank returns the number of dimensions.
func (a Array) Rank() int {
	return len(a.Shape)
}

// RowLen returns the number of cells under one index of the first axis.
func (a Array) RowLen() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return size(a.Shape[1:])
}

// Row returns the cells under index i of the first axis. The slice aliases Data.
func (a Array) Row(i int) []float64 {
	n := a.RowLen()
	return a.Data[i*n : (i+1)*n]
}

// Offset converts an index tuple into a position in Data.
func (a Array) Offset(idx ...int) int {
	if len(idx) != len(a.Shape) {
		panic(fmt.Sprintf("grid: %d indices for rank %d array", len(idx), len(a.Shape)))
	}
	off := 0
	for d, i := range idx {
		off = off*a.Shape[d] + i
	}
	return off
}

// At returns the cell at idx.
func (a Array) At(idx ...int) float64 {
	return a.Data[a.Offset(idx...)]
}

// Set stores v at idx.
func (a Array) Set(v float64, idx ...int) {
	a.Data[a.Offset(idx...)] = v
}

// Column copies column j of a rank-2 array.
func (a Array) Column(j int) []float64 {
	col := make([]float64, a.Shape[0])
	for i := range col {
		col[i] = a.Data[i*a.Shape[1]+j]
	}
	return col
}

// CountMissing returns how many cells hold the sentinel.
func (a Array) CountMissing() int {
	n := 0
	for _, v := range a.Data {
		if IsMissing(v) {
			n++
		}
	}
	return n
}
