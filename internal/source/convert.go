package source

import (
	"fmt"
	"math"
	"reflect"

	"github.com/rtm0/tecgrid/internal/grid"
)

// array flattens a numeric (possibly nested) slice into a row-major array.
func array(name string, v any) (grid.Array, error) {
	var a grid.Array
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return a, fmt.Errorf("%w: dataset %q is %T, not an array", ErrMalformed, name, v)
	}
	for t := rv.Type(); t.Kind() == reflect.Slice; t = t.Elem() {
		a.Shape = append(a.Shape, -1)
	}
	if err := flatten(name, rv, 0, &a); err != nil {
		return grid.Array{}, err
	}
	for d, n := range a.Shape {
		if n < 0 {
			a.Shape[d] = 0
		}
	}
	return a, nil
}

func flatten(name string, rv reflect.Value, depth int, a *grid.Array) error {
	n := rv.Len()
	if a.Shape[depth] < 0 {
		a.Shape[depth] = n
	} else if a.Shape[depth] != n {
		return fmt.Errorf("%w: dataset %q is ragged", ErrMalformed, name)
	}
	if depth < len(a.Shape)-1 {
		for i := 0; i < n; i++ {
			if err := flatten(name, rv.Index(i), depth+1, a); err != nil {
				return err
			}
		}
		return nil
	}
	for i := 0; i < n; i++ {
		f, ok := number(rv.Index(i))
		if !ok {
			return fmt.Errorf("%w: dataset %q has non-numeric type %s", ErrMalformed, name, rv.Type().Elem())
		}
		a.Data = append(a.Data, f)
	}
	return nil
}

func number(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	}
	return 0, false
}

// vector returns a 1-D dataset as float64 values.
func vector(name string, v any) ([]float64, error) {
	a, err := array(name, v)
	if err != nil {
		return nil, err
	}
	if a.Rank() != 1 {
		return nil, fmt.Errorf("%w: dataset %q has rank %d, want 1", ErrMalformed, name, a.Rank())
	}
	return a.Data, nil
}

// timestamps returns a 1-D dataset of epoch seconds, validated to be finite
// and strictly increasing.
func timestamps(name string, v any) ([]int64, error) {
	if ts, ok := v.([]int64); ok {
		return ts, checkIncreasing(name, ts)
	}
	f, err := vector(name, v)
	if err != nil {
		return nil, err
	}
	ts := make([]int64, len(f))
	for i, x := range f {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: dataset %q has a non-finite timestamp at %d", ErrMalformed, name, i)
		}
		ts[i] = int64(math.Round(x))
	}
	return ts, checkIncreasing(name, ts)
}

func checkIncreasing(name string, ts []int64) error {
	for i := 1; i < len(ts); i++ {
		if ts[i] <= ts[i-1] {
			return fmt.Errorf("%w: dataset %q at %d (%d after %d)", ErrNonMonotonic, name, i, ts[i], ts[i-1])
		}
	}
	return nil
}

// moveTimeFirst reorders an (X, Y, T) array into (T, X, Y).
func moveTimeFirst(a grid.Array) grid.Array {
	nx, ny, nt := a.Shape[0], a.Shape[1], a.Shape[2]
	out := grid.NewArray(nt, nx, ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			src := (x*ny + y) * nt
			for t := 0; t < nt; t++ {
				out.Data[(t*nx+x)*ny+y] = a.Data[src+t]
			}
		}
	}
	return out
}
