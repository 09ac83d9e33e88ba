package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rtm0/tecgrid/internal/grid"
)

// Pattern returns the file name pattern, in filepath.Match syntax, that
// matches the file or files published for a unit.
type Pattern func(Unit) string

// MadrigalPattern matches the daily madrigal GPS TEC files, e.g.
// gps200101g.002.hdf5. Several processing versions may exist for one day.
func MadrigalPattern(u Unit) string {
	return fmt.Sprintf("gps%02d%02d%02dg.*.hdf5", u.Year%100, int(u.Month), u.Day)
}

// TECPattern matches the monthly prepared TEC files, e.g. 2020_01_tec.h5.
func TECPattern(u Unit) string {
	return fmt.Sprintf("%04d_%02d_tec.h5", u.Year, int(u.Month))
}

// ARBPattern matches the monthly auroral boundary files, e.g. 2020_01_arb.h5.
func ARBPattern(u Unit) string {
	return fmt.Sprintf("%04d_%02d_arb.h5", u.Year, int(u.Month))
}

// Resolved pairs a unit with the file chosen for it.
type Resolved struct {
	Unit Unit
	Path string
}

// Resolver finds the archive file for each unit of a time grid.
type Resolver struct {
	Dir         string
	Granularity Granularity
	Pattern     Pattern
	Logger      *slog.Logger
}

// Resolve returns the files for the units spanned by g in ascending unit
// order, along with the units that have no file. A missing unit is not an
// error: its grid positions simply stay unfilled.
func (r Resolver) Resolve(g grid.TimeGrid) (files []Resolved, missing []Unit, err error) {
	names, err := r.fileNames()
	if err != nil {
		return nil, nil, err
	}
	for _, u := range Units(g, r.Granularity) {
		pattern := r.Pattern(u)
		var matches []string
		for _, name := range names {
			ok, err := filepath.Match(pattern, name)
			if err != nil {
				return nil, nil, fmt.Errorf("matching %q: %w", pattern, err)
			}
			if ok {
				matches = append(matches, name)
			}
		}
		if len(matches) == 0 {
			r.Logger.Warn("source file missing", "unit", u.String(), "dir", r.Dir, "pattern", pattern)
			missing = append(missing, u)
			continue
		}
		// Names are sorted, so the highest processing suffix comes last.
		chosen := matches[len(matches)-1]
		if len(matches) > 1 {
			r.Logger.Debug("several source files for unit", "unit", u.String(), "candidates", len(matches), "chosen", chosen)
		}
		files = append(files, Resolved{Unit: u, Path: filepath.Join(r.Dir, chosen)})
	}
	return files, missing, nil
}

// fileNames lists the regular files of the archive directory in lexical
// order. A directory that does not exist holds no files. Only entry names are
// matched, so the directory path itself may contain pattern metacharacters.
func (r Resolver) fileNames() ([]string, error) {
	entries, err := os.ReadDir(r.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.Dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
