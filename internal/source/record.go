package source

import (
	"fmt"
	"slices"

	"github.com/rtm0/tecgrid/internal/grid"
)

// TECRecord is one monthly prepared TEC file. TEC, N and Std are laid out
// time first, one row per entry of Times.
type TECRecord struct {
	Times  []int64
	TEC    grid.Array
	N      grid.Array
	Std    grid.Array
	SSMLon []float64
}

// ARBRecord is one monthly auroral boundary file: MLat holds the boundary
// latitude per magnetic local time bin, one row per entry of Times.
type ARBRecord struct {
	Times []int64
	MLat  grid.Array
}

// MadrigalRecord is one daily madrigal GPS TEC file, transposed so that TEC
// is laid out (time, lat, lon).
type MadrigalRecord struct {
	Times []int64
	Lat   []float64
	Lon   []float64
	TEC   grid.Array
}

const (
	madrigalLayout = "Data/Array Layout"
	madrigalParams = madrigalLayout + "/2D Parameters"
)

// ReadTEC decodes the tec, n, std, times and ssmlon datasets.
func ReadTEC(c Container) (*TECRecord, error) {
	r := &TECRecord{}
	var err error
	if r.Times, err = readTimes(c, "times"); err != nil {
		return nil, err
	}
	if r.TEC, err = readTimeSeries(c, "tec", len(r.Times)); err != nil {
		return nil, err
	}
	if r.N, err = readTimeSeries(c, "n", len(r.Times)); err != nil {
		return nil, err
	}
	if r.Std, err = readTimeSeries(c, "std", len(r.Times)); err != nil {
		return nil, err
	}
	for _, aux := range []struct {
		name string
		a    grid.Array
	}{{"n", r.N}, {"std", r.Std}} {
		if !slices.Equal(aux.a.Shape, r.TEC.Shape) {
			return nil, fmt.Errorf("%w: dataset %q has shape %v, tec has %v", ErrMalformed, aux.name, aux.a.Shape, r.TEC.Shape)
		}
	}
	if r.SSMLon, err = readVector(c, "ssmlon", len(r.Times)); err != nil {
		return nil, err
	}
	return r, nil
}

// ReadARB decodes the mlat and times datasets.
func ReadARB(c Container) (*ARBRecord, error) {
	r := &ARBRecord{}
	var err error
	if r.Times, err = readTimes(c, "times"); err != nil {
		return nil, err
	}
	if r.MLat, err = readTimeSeries(c, "mlat", len(r.Times)); err != nil {
		return nil, err
	}
	if r.MLat.Rank() != 2 {
		return nil, fmt.Errorf("%w: dataset %q has rank %d, want 2", ErrMalformed, "mlat", r.MLat.Rank())
	}
	return r, nil
}

// ReadMadrigal decodes the nested madrigal layout: tec (lat, lon, time),
// timestamps, gdlat and glon.
func ReadMadrigal(c Container) (*MadrigalRecord, error) {
	r := &MadrigalRecord{}
	var err error
	if r.Times, err = readTimes(c, madrigalLayout+"/timestamps"); err != nil {
		return nil, err
	}
	if r.Lat, err = readVector(c, madrigalLayout+"/gdlat", -1); err != nil {
		return nil, err
	}
	if r.Lon, err = readVector(c, madrigalLayout+"/glon", -1); err != nil {
		return nil, err
	}
	name := madrigalParams + "/tec"
	v, err := c.Values(name)
	if err != nil {
		return nil, err
	}
	tec, err := array(name, v)
	if err != nil {
		return nil, err
	}
	want := []int{len(r.Lat), len(r.Lon), len(r.Times)}
	if !slices.Equal(tec.Shape, want) {
		return nil, fmt.Errorf("%w: dataset %q has shape %v, want %v", ErrMalformed, name, tec.Shape, want)
	}
	r.TEC = moveTimeFirst(tec)
	return r, nil
}

func readTimes(c Container, name string) ([]int64, error) {
	v, err := c.Values(name)
	if err != nil {
		return nil, err
	}
	return timestamps(name, v)
}

// readVector reads a 1-D dataset; n < 0 skips the length check.
func readVector(c Container, name string, n int) ([]float64, error) {
	v, err := c.Values(name)
	if err != nil {
		return nil, err
	}
	f, err := vector(name, v)
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(f) != n {
		return nil, fmt.Errorf("%w: dataset %q has %d values, want %d", ErrMalformed, name, len(f), n)
	}
	return f, nil
}

// readTimeSeries reads a dataset whose first axis must have nt entries.
func readTimeSeries(c Container, name string, nt int) (grid.Array, error) {
	v, err := c.Values(name)
	if err != nil {
		return grid.Array{}, err
	}
	a, err := array(name, v)
	if err != nil {
		return grid.Array{}, err
	}
	if a.Shape[0] != nt {
		return grid.Array{}, fmt.Errorf("%w: dataset %q has %d rows, want %d", ErrMalformed, name, a.Shape[0], nt)
	}
	return a, nil
}

// Summary returns the record's dimensions suitable for logging.
func (r *TECRecord) Summary() []any {
	return []any{"times", len(r.Times), "shape", r.TEC.Shape}
}

// Summary returns the record's dimensions suitable for logging.
func (r *ARBRecord) Summary() []any {
	return []any{"times", len(r.Times), "shape", r.MLat.Shape}
}

// Summary returns the record's dimensions suitable for logging.
func (r *MadrigalRecord) Summary() []any {
	return []any{"times", len(r.Times), "latCnt", len(r.Lat), "lonCnt", len(r.Lon)}
}
