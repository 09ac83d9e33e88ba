package regrid

import (
	"sort"

	"github.com/rtm0/tecgrid/internal/grid"
)

// Interp evaluates the piecewise linear function through (xp, fp) at every
// x. Points outside [xp[0], xp[len-1]] take the nearest endpoint value. xp must
// be strictly increasing; with no nodes every result is missing.
func Interp(x, xp []int64, fp []float64) []float64 {
	out := make([]float64, len(x))
	if len(xp) == 0 {
		for i := range out {
			out[i] = grid.Missing
		}
		return out
	}
	last := len(xp) - 1
	for i, t := range x {
		switch {
		case t <= xp[0]:
			out[i] = fp[0]
		case t >= xp[last]:
			out[i] = fp[last]
		default:
			// xp[j-1] < t <= xp[j]
			j := sort.Search(len(xp), func(k int) bool { return xp[k] >= t })
			if xp[j] == t {
				out[i] = fp[j]
				continue
			}
			x0, x1 := float64(xp[j-1]), float64(xp[j])
			out[i] = fp[j-1] + (fp[j]-fp[j-1])*(float64(t)-x0)/(x1-x0)
		}
	}
	return out
}

// InterpolateColumns interpolates every column of a (nodes x columns) array
// independently onto ref and returns a (len(ref) x columns) array.
func InterpolateColumns(nodes []int64, values grid.Array, ref []int64) grid.Array {
	cols := values.RowLen()
	out := grid.NewArray(len(ref), cols)
	for j := 0; j < cols; j++ {
		col := Interp(ref, nodes, values.Column(j))
		for i, v := range col {
			out.Data[i*cols+j] = v
		}
	}
	return out
}
