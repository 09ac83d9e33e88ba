package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rtm0/tecgrid/internal/catalog"
	"github.com/rtm0/tecgrid/internal/config"
	"github.com/rtm0/tecgrid/internal/export"
	"github.com/rtm0/tecgrid/internal/regrid"
)

func TestParseRequest(t *testing.T) {
	req, err := parseRequest("madrigal, arb", "2020-01-01", "2020-01-01T01:00:00Z", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []regrid.Dataset{regrid.Madrigal, regrid.ARB}, req.Datasets)
	assert.True(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Equal(req.Start))
	assert.True(t, time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC).Equal(req.End))

	for name, args := range map[string][4]string{
		"unknown dataset": {"era5", "2020-01-01", "2020-01-02", "1h"},
		"no dataset":      {",", "2020-01-01", "2020-01-02", "1h"},
		"bad start":       {"tec", "yesterday", "2020-01-02", "1h"},
		"missing end":     {"tec", "2020-01-01", "", "1h"},
		"reversed":        {"tec", "2020-01-02", "2020-01-01", "1h"},
		"sub-second":      {"tec", "2020-01-01", "2020-01-02", "10ms"},
	} {
		t.Run(name, func(t *testing.T) {
			step, err := time.ParseDuration(args[3])
			require.NoError(t, err)
			_, err = parseRequest(args[0], args[1], args[2], step)
			assert.Error(t, err)
		})
	}
}

func TestRun_MissingArchivesStillWriteOutputs(t *testing.T) {
	t.Setenv(config.DataDirEnv, "")
	cfg := config.Default()
	cfg.Paths.Root = t.TempDir()
	require.NoError(t, cfg.Validate())

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	req := request{
		Datasets:  []regrid.Dataset{regrid.TEC, regrid.ARB},
		Start:     start,
		End:       start.Add(3 * time.Hour),
		Step:      time.Hour,
		Parquet:   true,
		Quicklook: true,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, run(context.Background(), cfg, req, logger))

	out := filepath.Join(cfg.Paths.Root, "output")
	for _, ext := range []string{".nc", ".yaml", ".parquet", ".png"} {
		assert.FileExists(t, filepath.Join(out, "arb_20200101_20200101"+ext))
		assert.FileExists(t, filepath.Join(out, "tec_20200101_20200101"+ext))
	}

	tec, err := export.ReadNetCDF(filepath.Join(out, "tec_20200101_20200101.nc"), "tec")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 48}, tec.Shape)
	assert.Equal(t, 3*48, tec.CountMissing())

	data, err := os.ReadFile(filepath.Join(out, "arb_20200101_20200101.yaml"))
	require.NoError(t, err)
	var md map[string]any
	require.NoError(t, yaml.Unmarshal(data, &md))
	assert.Equal(t, []any{"2020-01"}, md["missing_units"])
	assert.Equal(t, 3*48, md["missing_cells"])
	assert.Equal(t, 3, md["time_count"])
}

func TestRun_RangeRoundingToEmptyGrid(t *testing.T) {
	t.Setenv(config.DataDirEnv, "")
	cfg := config.Default()
	cfg.Paths.Root = t.TempDir()
	cfg.Sinks.Catalog = filepath.Join(cfg.Paths.Root, "catalog.db")
	require.NoError(t, cfg.Validate())

	// Both ends round up to 01:00, leaving no hourly timestamp.
	start := time.Date(2020, 1, 1, 0, 10, 0, 0, time.UTC)
	req, err := parseRequest("tec,arb", start.Format(time.RFC3339), start.Add(40*time.Minute).Format(time.RFC3339), time.Hour)
	require.NoError(t, err)
	req.Parquet, req.Quicklook = true, true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, run(context.Background(), cfg, req, logger))

	out := filepath.Join(cfg.Paths.Root, "output")
	for _, ds := range []string{"tec", "arb"} {
		base := filepath.Join(out, ds+"_20200101_20200101")
		assert.FileExists(t, base+".yaml")
		for _, ext := range []string{".nc", ".parquet", ".png"} {
			assert.NoFileExists(t, base+ext)
		}

		data, err := os.ReadFile(base + ".yaml")
		require.NoError(t, err)
		var md map[string]any
		require.NoError(t, yaml.Unmarshal(data, &md))
		assert.Equal(t, 0, md["time_count"])
		assert.Equal(t, 0, md["missing_cells"])
	}

	store := catalog.NewSqliteStore(cfg.Sinks.Catalog)
	defer store.Close()
	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "tec", runs[0].Dataset)
	assert.Equal(t, filepath.Join(out, "tec_20200101_20200101.yaml"), runs[0].Output)
}
