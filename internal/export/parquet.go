package export

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/rtm0/tecgrid/internal/grid"
	"github.com/rtm0/tecgrid/internal/regrid"
)

// Cell is one row of the long-format table. Y is null for results with a
// single spatial axis and Value is null for missing cells.
type Cell struct {
	Time  int64    `parquet:"time"`
	X     float64  `parquet:"x"`
	Y     *float64 `parquet:"y,optional"`
	Value *float64 `parquet:"value,optional"`
}

const parquetBatch = 10_000

// Cells flattens a result into one Cell per grid cell, time major.
func Cells(res *regrid.Result, fn func([]Cell) error) error {
	batch := make([]Cell, 0, parquetBatch)
	x := res.Axes[0].Values
	var y []float64
	if len(res.Axes) > 1 {
		y = res.Axes[1].Values
	}
	for i, u := range res.Grid.Unix {
		for k, v := range res.Values.Row(i) {
			c := Cell{Time: u}
			if y == nil {
				c.X = x[k]
			} else {
				c.X = x[k/len(y)]
				c.Y = &y[k%len(y)]
			}
			if !grid.IsMissing(v) {
				c.Value = &v
			}
			batch = append(batch, c)
			if len(batch) == parquetBatch {
				if err := fn(batch); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// WriteParquet writes the result as a zstd-compressed long-format table.
func WriteParquet(path string, res *regrid.Result) (err error) {
	if len(res.Axes) == 0 || len(res.Axes) > 2 {
		return fmt.Errorf("writing %s: %d spatial axes not supported", path, len(res.Axes))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cErr)
		}
	}()

	w := parquet.NewGenericWriter[Cell](f, parquet.Compression(&parquet.Zstd))
	err = Cells(res, func(cells []Cell) error {
		_, err := w.Write(cells)
		return err
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return nil
}

// ReadParquet reads back a table written by WriteParquet.
func ReadParquet(path string) (_ []Cell, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	r := parquet.NewGenericReader[Cell](pf)
	defer r.Close()

	cells := make([]Cell, r.NumRows())
	total := 0
	for total < len(cells) {
		n, err := r.Read(cells[total:])
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return cells[:total], nil
}
