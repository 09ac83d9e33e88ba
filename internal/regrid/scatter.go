package regrid

import (
	"github.com/rtm0/tecgrid/internal/grid"
)

// TimeMasks returns the positions of the timestamps shared by the reference
// grid and a native time axis, as parallel index lists in ascending order:
// ref[gridIdx[k]] == native[nativeIdx[k]]. Both axes must be strictly
// increasing.
func TimeMasks(native, ref []int64) (gridIdx, nativeIdx []int) {
	pos := make(map[int64]int, len(native))
	for i, t := range native {
		pos[t] = i
	}
	for i, t := range ref {
		if j, ok := pos[t]; ok {
			gridIdx = append(gridIdx, i)
			nativeIdx = append(nativeIdx, j)
		}
	}
	return gridIdx, nativeIdx
}

// Scatter copies rows nativeIdx of src into rows gridIdx of dst. Both arrays
// are laid out time first. maps holds one AxisMap per spatial axis of src;
// nil or all-conforming maps copy whole rows, otherwise every cell is routed
// through the maps and cells whose coordinate has no canonical position are
// dropped. Cells of dst that receive nothing keep their previous value.
func Scatter(dst grid.Array, src grid.Array, gridIdx, nativeIdx []int, maps []AxisMap) {
	if maps == nil || conforming(maps) {
		for k, g := range gridIdx {
			copy(dst.Row(g), src.Row(nativeIdx[k]))
		}
		return
	}

	spatial := src.Shape[1:]
	idx := make([]int, len(spatial))
	dstIdx := make([]int, len(spatial)+1)
	for k, g := range gridIdx {
		row := src.Row(nativeIdx[k])
		dstIdx[0] = g
		for i := range idx {
			idx[i] = 0
		}
		for _, v := range row {
			keep := true
			for d, fi := range idx {
				ci := maps[d].Index[fi]
				if ci < 0 {
					keep = false
					break
				}
				dstIdx[d+1] = ci
			}
			if keep {
				dst.Set(v, dstIdx...)
			}
			// Advance the row-major file index.
			for d := len(idx) - 1; d >= 0; d-- {
				idx[d]++
				if idx[d] < spatial[d] {
					break
				}
				idx[d] = 0
			}
		}
	}
}
