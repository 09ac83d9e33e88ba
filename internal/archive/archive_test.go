package archive

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/tecgrid/internal/grid"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	return p
}

func TestUnits(t *testing.T) {
	start := time.Date(2020, 1, 31, 22, 0, 0, 0, time.UTC)
	g := grid.Build(start, start.Add(4*time.Hour), time.Hour)

	assert.Equal(t, []Unit{{2020, time.January, 31}, {2020, time.February, 1}}, Units(g, Daily))
	assert.Equal(t, []Unit{{2020, time.January, 0}, {2020, time.February, 0}}, Units(g, Monthly))
	assert.Empty(t, Units(grid.TimeGrid{}, Daily))
}

func TestUnit(t *testing.T) {
	u := Unit{Year: 2019, Month: time.December}
	assert.Equal(t, "2019-12", u.String())
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), u.End())

	d := Unit{Year: 2020, Month: time.February, Day: 29}
	assert.Equal(t, "2020-02-29", d.String())
	assert.Equal(t, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), d.End())

	units := UnitsBetween(time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), Monthly)
	assert.Equal(t, []Unit{{2020, time.January, 0}, {2020, time.February, 0}}, units)
}

func TestPatterns(t *testing.T) {
	assert.Equal(t, "gps200102g.*.hdf5", MadrigalPattern(Unit{2020, time.January, 2}))
	assert.Equal(t, "2020_03_tec.h5", TECPattern(Unit{Year: 2020, Month: time.March}))
	assert.Equal(t, "2020_03_arb.h5", ARBPattern(Unit{Year: 2020, Month: time.March}))
}

func TestResolve_PicksLatestVersionAndSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "gps200101g.001.hdf5")
	latest := touch(t, dir, "gps200101g.002.hdf5")
	third := touch(t, dir, "gps200103g.001.hdf5")

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	g := grid.Build(start, start.AddDate(0, 0, 3), 5*time.Minute)
	r := Resolver{Dir: dir, Granularity: Daily, Pattern: MadrigalPattern, Logger: discard}

	files, missing, err := r.Resolve(g)
	require.NoError(t, err)
	assert.Equal(t, []Resolved{
		{Unit: Unit{2020, time.January, 1}, Path: latest},
		{Unit: Unit{2020, time.January, 3}, Path: third},
	}, files)
	assert.Equal(t, []Unit{{2020, time.January, 2}}, missing)
}

func TestResolve_DirectoryWithPatternCharacters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "[run1]")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	jan := touch(t, dir, "2020_01_tec.h5")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "2020_02_tec.h5"), 0o755))

	start := time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC)
	g := grid.Build(start, start.AddDate(0, 0, 2), time.Hour)
	r := Resolver{Dir: dir, Granularity: Monthly, Pattern: TECPattern, Logger: discard}

	files, missing, err := r.Resolve(g)
	require.NoError(t, err)
	assert.Equal(t, []Resolved{{Unit: Unit{2020, time.January, 0}, Path: jan}}, files)
	assert.Equal(t, []Unit{{2020, time.February, 0}}, missing)
}

func TestResolve_AbsentDirectory(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	g := grid.Build(start, start.Add(time.Hour), time.Hour)
	r := Resolver{Dir: filepath.Join(t.TempDir(), "absent"), Granularity: Monthly, Pattern: ARBPattern, Logger: discard}

	files, missing, err := r.Resolve(g)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, []Unit{{2020, time.January, 0}}, missing)
}

func TestHTTPDownloader(t *testing.T) {
	payload := []byte("hdf5-bytes")
	var gz bytes.Buffer
	zw := pgzip.NewWriter(&gz)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2020_01_arb.h5.gz":
			w.Write(gz.Bytes())
		case "/2020_02_arb.h5.gz":
			http.NotFound(w, r)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	touch(t, dir, "2020_03_arb.h5")
	d, err := NewHTTPDownloader(dir, Monthly, srv.URL+`/{{printf "%04d_%02d_arb.h5.gz" .Year .Month}}`, 5*time.Second, discard)
	require.NoError(t, err)

	out, err := d.Download(context.Background(), time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, Outcome{Downloaded: 1, Skipped: 1, Failed: 1, Bytes: uint64(len(payload))}, out)

	got, err := os.ReadFile(filepath.Join(dir, "2020_01_arb.h5"))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.NoFileExists(t, filepath.Join(dir, "2020_02_arb.h5"))
}
