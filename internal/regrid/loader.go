package regrid

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rtm0/tecgrid/internal/archive"
	"github.com/rtm0/tecgrid/internal/config"
	"github.com/rtm0/tecgrid/internal/grid"
	"github.com/rtm0/tecgrid/internal/source"
)

// Dataset names an archive.
type Dataset string

const (
	Madrigal Dataset = "madrigal"
	TEC      Dataset = "tec"
	ARB      Dataset = "arb"
)

// MadrigalCadence is the native sampling of the madrigal archive.
const MadrigalCadence = 5 * time.Minute

// Dim is a named spatial axis of a Result.
type Dim struct {
	Name   string
	Values []float64
}

// Report collects the recoverable conditions met while filling a Result.
type Report struct {
	Files   []archive.Resolved
	Missing []archive.Unit
	// Partial lists the files whose spatial axes differ from the canonical
	// axes.
	Partial []string
	// Dropped counts file coordinates that have no canonical position.
	Dropped int
}

// Result is a dense array aligned with a reference time grid. Values is laid
// out (time, Axes...) and holds grid.Missing where no sample contributed.
type Result struct {
	Dataset Dataset
	Name    string
	Grid    grid.TimeGrid
	Values  grid.Array
	// Aux holds per-timestamp companion arrays, time first.
	Aux    map[string]grid.Array
	Axes   []Dim
	Report Report
}

// Summary returns the result's dimensions suitable for logging.
func (r *Result) Summary() []any {
	return []any{
		"dataset", string(r.Dataset),
		"timeCnt", r.Grid.Len(),
		"shape", r.Values.Shape,
		"missing", humanize.Comma(int64(r.Values.CountMissing())),
		slog.Group("report",
			"files", len(r.Report.Files),
			"missingUnits", len(r.Report.Missing),
			"partial", len(r.Report.Partial),
			"dropped", r.Report.Dropped,
		),
	}
}

// Loader regrids the archives described by a validated Config. Every call
// builds a fresh Result; the Loader itself holds no mutable state.
type Loader struct {
	Config *config.Config
	Open   source.OpenFunc
	Logger *slog.Logger
}

// NewLoader returns a Loader reading HDF5 files.
func NewLoader(cfg *config.Config, logger *slog.Logger) *Loader {
	return &Loader{Config: cfg, Open: source.OpenHDF5, Logger: logger}
}

// Load dispatches to the pipeline for ds. dt is ignored for the madrigal
// archive, which is always sampled at MadrigalCadence.
func (l *Loader) Load(ds Dataset, start, end time.Time, dt time.Duration) (*Result, error) {
	switch ds {
	case Madrigal:
		return l.Madrigal(start, end)
	case TEC:
		return l.TEC(start, end, dt)
	case ARB:
		return l.ARB(start, end, dt)
	}
	return nil, fmt.Errorf("unknown dataset %q", ds)
}

// Madrigal fills a (time, lat, lon) TEC array from the daily madrigal files.
// Files whose lat/lon axes differ from the canonical axes are remapped cell by
// cell; coordinates outside the canonical axes are dropped.
func (l *Loader) Madrigal(start, end time.Time) (*Result, error) {
	axes := l.Config.Canonical()
	g := grid.Build(start, end, MadrigalCadence)
	res := &Result{
		Dataset: Madrigal,
		Name:    "tec",
		Grid:    g,
		Values:  grid.NewMissing(g.Len(), axes.MadrigalLat.Len(), axes.MadrigalLon.Len()),
		Axes: []Dim{
			{Name: "lat", Values: axes.MadrigalLat.Values()},
			{Name: "lon", Values: axes.MadrigalLon.Values()},
		},
	}
	if err := l.resolve(res, l.Config.Paths.Madrigal, archive.Daily, archive.MadrigalPattern); err != nil {
		return nil, err
	}

	for _, f := range res.Report.Files {
		rec, err := readFile(l, f.Path, source.ReadMadrigal)
		if err != nil {
			return nil, err
		}
		maps := []AxisMap{CheckAxis(rec.Lat, axes.MadrigalLat), CheckAxis(rec.Lon, axes.MadrigalLon)}
		if !conforming(maps) {
			l.Logger.Error("source file does not match canonical grid",
				"file", f.Path,
				slog.Group("lat", "matched", maps[0].Matched, "dropped", maps[0].Dropped),
				slog.Group("lon", "matched", maps[1].Matched, "dropped", maps[1].Dropped),
			)
			res.Report.Partial = append(res.Report.Partial, f.Path)
			res.Report.Dropped += maps[0].Dropped + maps[1].Dropped
		}
		gi, ni := TimeMasks(rec.Times, g.Unix)
		Scatter(res.Values, rec.TEC, gi, ni, maps)
	}
	return res, nil
}

// TEC fills a (time, bin) array from the monthly prepared TEC files, along
// with the n, std and ssmlon companions. The files carry no coordinate axis,
// so their bin count must equal the canonical tec_bins axis.
func (l *Loader) TEC(start, end time.Time, dt time.Duration) (*Result, error) {
	bins := l.Config.Canonical().TECBins
	g := grid.Build(start, end, dt)
	res := &Result{
		Dataset: TEC,
		Name:    "tec",
		Grid:    g,
		Values:  grid.NewMissing(g.Len(), bins.Len()),
		Aux: map[string]grid.Array{
			"n":      grid.NewMissing(g.Len(), bins.Len()),
			"std":    grid.NewMissing(g.Len(), bins.Len()),
			"ssmlon": grid.NewMissing(g.Len()),
		},
		Axes: []Dim{{Name: "bin", Values: bins.Values()}},
	}
	if err := l.resolve(res, l.Config.Paths.TEC, archive.Monthly, archive.TECPattern); err != nil {
		return nil, err
	}

	want := []int{-1, bins.Len()}
	for _, f := range res.Report.Files {
		rec, err := readFile(l, f.Path, source.ReadTEC)
		if err != nil {
			return nil, err
		}
		if len(rec.Times) == 0 {
			l.Logger.Warn("source file has no records", "file", f.Path)
			continue
		}
		want[0] = len(rec.Times)
		if !slices.Equal(rec.TEC.Shape, want) {
			return nil, fmt.Errorf("reading %s: %w: tec has shape %v, want %v", f.Path, source.ErrMalformed, rec.TEC.Shape, want)
		}
		gi, ni := TimeMasks(rec.Times, g.Unix)
		Scatter(res.Values, rec.TEC, gi, ni, nil)
		Scatter(res.Aux["n"], rec.N, gi, ni, nil)
		Scatter(res.Aux["std"], rec.Std, gi, ni, nil)
		ssmlon := grid.Array{Shape: []int{len(rec.SSMLon)}, Data: rec.SSMLon}
		Scatter(res.Aux["ssmlon"], ssmlon, gi, ni, nil)
	}
	return res, nil
}

// ARB returns the auroral boundary latitude for every MLT bin, linearly
// interpolated in time onto the reference grid from the nodes of all monthly
// files. Outside the node range the nearest node value is used; with no nodes
// at all the result is entirely missing.
func (l *Loader) ARB(start, end time.Time, dt time.Duration) (*Result, error) {
	mlt := l.Config.Canonical().MLT
	g := grid.Build(start, end, dt)
	res := &Result{
		Dataset: ARB,
		Name:    "mlat",
		Grid:    g,
		Axes:    []Dim{{Name: "mlt", Values: mlt.Values()}},
	}
	if err := l.resolve(res, l.Config.Paths.ARB, archive.Monthly, archive.ARBPattern); err != nil {
		return nil, err
	}

	var nodes []int64
	values := grid.Array{Shape: []int{0, mlt.Len()}}
	for _, f := range res.Report.Files {
		rec, err := readFile(l, f.Path, source.ReadARB)
		if err != nil {
			return nil, err
		}
		if len(rec.Times) == 0 {
			l.Logger.Warn("source file has no records", "file", f.Path)
			continue
		}
		if rec.MLat.Shape[1] != mlt.Len() {
			return nil, fmt.Errorf("reading %s: %w: mlat has %d bins, want %d", f.Path, source.ErrMalformed, rec.MLat.Shape[1], mlt.Len())
		}
		if len(nodes) > 0 && rec.Times[0] <= nodes[len(nodes)-1] {
			return nil, fmt.Errorf("reading %s: %w: first time %d does not follow %d", f.Path, source.ErrNonMonotonic, rec.Times[0], nodes[len(nodes)-1])
		}
		nodes = append(nodes, rec.Times...)
		values.Data = append(values.Data, rec.MLat.Data...)
		values.Shape[0] += len(rec.Times)
	}
	res.Values = InterpolateColumns(nodes, values, g.Unix)
	return res, nil
}

func (l *Loader) resolve(res *Result, dir string, gran archive.Granularity, pattern archive.Pattern) error {
	r := archive.Resolver{
		Dir:         l.Config.Dir(dir),
		Granularity: gran,
		Pattern:     pattern,
		Logger:      l.Logger.With("dataset", string(res.Dataset)),
	}
	files, missing, err := r.Resolve(res.Grid)
	if err != nil {
		return fmt.Errorf("resolving %s files: %w", res.Dataset, err)
	}
	res.Report.Files = files
	res.Report.Missing = missing
	return nil
}

// readFile opens path, decodes it with read and closes it before returning.
func readFile[R interface{ Summary() []any }](l *Loader, path string, read func(source.Container) (R, error)) (rec R, err error) {
	c, err := l.Open(path)
	if err != nil {
		return rec, fmt.Errorf("opening %s: %w", path, err)
	}
	defer closeWithError(c, &err)

	rec, err = read(c)
	if err != nil {
		return rec, fmt.Errorf("reading %s: %w", path, err)
	}

	attrs := append([]any{"file", path}, rec.Summary()...)
	if s, ok := c.(interface{ Size() int64 }); ok {
		attrs = append(attrs, "size", humanize.Bytes(uint64(s.Size())))
	}
	l.Logger.Info("opened source file", attrs...)
	return rec, nil
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = fmt.Errorf("closing source file: %w", cErr)
	}
}
