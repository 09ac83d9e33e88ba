package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tecFile() Memory {
	return Memory{
		"times":  []int64{0, 3600, 7200},
		"tec":    [][]float32{{1, 2}, {3, 4}, {5, 6}},
		"n":      [][]int32{{1, 1}, {2, 2}, {3, 3}},
		"std":    [][]float64{{.1, .2}, {.3, .4}, {.5, .6}},
		"ssmlon": []float64{10, 20, 30},
	}
}

func TestReadTEC(t *testing.T) {
	r, err := ReadTEC(tecFile())
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 3600, 7200}, r.Times)
	assert.Equal(t, []int{3, 2}, r.TEC.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, r.TEC.Data)
	assert.Equal(t, []float64{1, 1, 2, 2, 3, 3}, r.N.Data)
	assert.Equal(t, []float64{10, 20, 30}, r.SSMLon)
}

func TestReadTEC_Malformed(t *testing.T) {
	cases := map[string]func(Memory){
		"missing dataset": func(m Memory) { delete(m, "std") },
		"row mismatch":    func(m Memory) { m["tec"] = [][]float32{{1, 2}} },
		"aux shape":       func(m Memory) { m["n"] = [][]int32{{1}, {2}, {3}} },
		"ragged":          func(m Memory) { m["tec"] = [][]float32{{1, 2}, {3}, {5, 6}} },
		"scalar":          func(m Memory) { m["ssmlon"] = 4.0 },
		"ssmlon length":   func(m Memory) { m["ssmlon"] = []float64{1} },
		"strings":         func(m Memory) { m["times"] = []string{"a"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := tecFile()
			mutate(m)
			_, err := ReadTEC(m)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestReadTEC_NonMonotonic(t *testing.T) {
	for name, times := range map[string]any{
		"duplicate":  []int64{0, 3600, 3600},
		"decreasing": []float64{7200, 3600, 0},
	} {
		t.Run(name, func(t *testing.T) {
			m := tecFile()
			m["times"] = times
			_, err := ReadTEC(m)
			assert.ErrorIs(t, err, ErrNonMonotonic)
		})
	}
}

func TestReadARB(t *testing.T) {
	r, err := ReadARB(Memory{
		"times": []float64{0, 60.0000001},
		"mlat":  [][]float64{{60, 61, 62}, {63, 64, 65}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 60}, r.Times)
	assert.Equal(t, []int{2, 3}, r.MLat.Shape)

	_, err = ReadARB(Memory{"times": []int64{0}, "mlat": []float64{60}})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReadMadrigal_TransposesToTimeFirst(t *testing.T) {
	// tec[lat][lon][time]
	tec := [][][]float64{
		{{1, 2, 3}, {4, 5, 6}},
		{{7, 8, 9}, {10, 11, 12}},
	}
	r, err := ReadMadrigal(Memory{
		"Data/Array Layout/2D Parameters/tec": tec,
		"Data/Array Layout/timestamps":        []float64{0, 300, 600},
		"Data/Array Layout/gdlat":             []float64{10, 20},
		"Data/Array Layout/glon":              []float64{-5, 5},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 2, 2}, r.TEC.Shape)
	for lat := range tec {
		for lon := range tec[lat] {
			for ti, v := range tec[lat][lon] {
				assert.Equal(t, v, r.TEC.At(ti, lat, lon))
			}
		}
	}
	assert.Equal(t, []float64{10, 20}, r.Lat)
	assert.Equal(t, []int64{0, 300, 600}, r.Times)
}

func TestReadMadrigal_ShapeMismatch(t *testing.T) {
	_, err := ReadMadrigal(Memory{
		"Data/Array Layout/2D Parameters/tec": [][][]float64{{{1, 2}}},
		"Data/Array Layout/timestamps":        []float64{0, 300, 600},
		"Data/Array Layout/gdlat":             []float64{10},
		"Data/Array Layout/glon":              []float64{5},
	})
	assert.ErrorIs(t, err, ErrMalformed)
}
