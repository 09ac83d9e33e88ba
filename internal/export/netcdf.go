// Package export persists regridded results: a named-array container, a
// key-value metadata companion, a long-format Parquet table and a ClickHouse
// table.
package export

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/rtm0/tecgrid/internal/grid"
	"github.com/rtm0/tecgrid/internal/regrid"
)

// TimeUnits describes the times variable.
const TimeUnits = "seconds since 1970-01-01 00:00:00 UTC"

// Variable is one named array of the container. Dims names every axis of
// Values in order.
type Variable struct {
	Name   string
	Dims   []string
	Values grid.Array
	Attrs  map[string]string
}

// Variables maps a result to the container layout: times, the coordinate
// axes, the regridded values and their companions.
func Variables(res *regrid.Result) []Variable {
	times := grid.NewArray(res.Grid.Len())
	for i, u := range res.Grid.Unix {
		times.Data[i] = float64(u)
	}
	dims := []string{"time"}
	vars := []Variable{{Name: "times", Dims: []string{"time"}, Values: times, Attrs: map[string]string{"units": TimeUnits}}}
	for _, d := range res.Axes {
		dims = append(dims, d.Name)
		vars = append(vars, Variable{
			Name:   d.Name,
			Dims:   []string{d.Name},
			Values: grid.Array{Shape: []int{len(d.Values)}, Data: d.Values},
		})
	}
	vars = append(vars, Variable{Name: res.Name, Dims: dims, Values: res.Values})
	for _, name := range auxNames(res) {
		a := res.Aux[name]
		vars = append(vars, Variable{Name: name, Dims: dims[:a.Rank()], Values: a})
	}
	return vars
}

// WriteNetCDF writes every variable as a separate dataset of one file.
func WriteNetCDF(path string, vars ...Variable) (err error) {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cErr := cw.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cErr)
		}
	}()

	for _, v := range vars {
		if len(v.Dims) != v.Values.Rank() {
			return fmt.Errorf("variable %q: %d dimension names for rank %d", v.Name, len(v.Dims), v.Values.Rank())
		}
		attrs, err := attributes(v.Attrs)
		if err != nil {
			return fmt.Errorf("variable %q: %w", v.Name, err)
		}
		err = cw.AddVar(v.Name, api.Variable{
			Values:     nested(v.Values),
			Dimensions: v.Dims,
			Attributes: attrs,
		})
		if err != nil {
			return fmt.Errorf("adding variable %q: %w", v.Name, err)
		}
	}
	return nil
}

func attributes(attrs map[string]string) (api.AttributeMap, error) {
	keys := sortedKeys(attrs)
	vals := make(map[string]any, len(attrs))
	for k, v := range attrs {
		vals[k] = v
	}
	return util.NewOrderedMap(keys, vals)
}

// nested converts a flat array into the nested slices the writer expects,
// e.g. [][]float64 for rank 2.
func nested(a grid.Array) any {
	if a.Rank() == 0 {
		return a.Data
	}
	t := reflect.TypeOf(float64(0))
	for range a.Shape {
		t = reflect.SliceOf(t)
	}
	return build(t, a.Shape, a.Data).Interface()
}

func build(t reflect.Type, shape []int, data []float64) reflect.Value {
	if len(shape) == 1 {
		return reflect.ValueOf(append([]float64(nil), data...))
	}
	n := shape[0]
	v := reflect.MakeSlice(t, n, n)
	step := 1
	for _, d := range shape[1:] {
		step *= d
	}
	for i := 0; i < n; i++ {
		v.Index(i).Set(build(t.Elem(), shape[1:], data[i*step:(i+1)*step]))
	}
	return v
}

var errNoVariable = errors.New("variable not found")

// ReadNetCDF reads one variable back as a flat array.
func ReadNetCDF(path, name string) (_ grid.Array, err error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return grid.Array{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer g.Close()

	vr, err := g.GetVariable(name)
	if err != nil {
		return grid.Array{}, fmt.Errorf("%w: %q: %v", errNoVariable, name, err)
	}
	var a grid.Array
	if err := flatten(reflect.ValueOf(vr.Values), &a, 0); err != nil {
		return grid.Array{}, fmt.Errorf("variable %q: %w", name, err)
	}
	return a, nil
}

func flatten(v reflect.Value, a *grid.Array, depth int) error {
	if v.Kind() != reflect.Slice {
		if !v.CanConvert(reflect.TypeOf(float64(0))) {
			return fmt.Errorf("unsupported element type %s", v.Type())
		}
		a.Data = append(a.Data, v.Convert(reflect.TypeOf(float64(0))).Float())
		return nil
	}
	if len(a.Shape) == depth {
		a.Shape = append(a.Shape, v.Len())
	}
	for i := 0; i < v.Len(); i++ {
		if err := flatten(v.Index(i), a, depth+1); err != nil {
			return err
		}
	}
	return nil
}
