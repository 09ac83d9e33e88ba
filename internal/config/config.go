// Package config holds the directory layout, canonical coordinate axes and
// sink settings shared by every regridding request.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rtm0/tecgrid/internal/grid"
)

// DataDirEnv overrides Paths.Root when set.
const DataDirEnv = "TECGRID_DATA_DIR"

// Config represents the application configuration. It is read once, validated
// and then treated as immutable.
type Config struct {
	LogLevel string         `yaml:"logLevel"`
	Paths    PathsConfig    `yaml:"paths"`
	Axes     AxesConfig     `yaml:"axes"`
	Download DownloadConfig `yaml:"download"`
	Sinks    SinksConfig    `yaml:"sinks"`

	canonical Canonical
}

// PathsConfig locates the archives. Relative dataset directories are taken
// relative to Root.
type PathsConfig struct {
	Root     string `yaml:"root"`
	Madrigal string `yaml:"madrigal"`
	TEC      string `yaml:"tec"`
	ARB      string `yaml:"arb"`
	Output   string `yaml:"output"`
}

// AxisConfig defines a coordinate axis either as explicit values or as an
// inclusive range.
type AxisConfig struct {
	Values []float64 `yaml:"values,omitempty"`
	Start  float64   `yaml:"start"`
	Stop   float64   `yaml:"stop"`
	Step   float64   `yaml:"step"`
}

// AxesConfig holds the canonical coordinate axes.
type AxesConfig struct {
	MadrigalLat AxisConfig `yaml:"madrigal_lat"`
	MadrigalLon AxisConfig `yaml:"madrigal_lon"`
	MLTVals     AxisConfig `yaml:"mlt_vals"`
	// TECBins defaults to MLTVals when left empty.
	TECBins AxisConfig `yaml:"tec_bins"`
}

// DownloadConfig configures the archive mirrors. URLs are text/template
// strings executed with the calendar unit, e.g.
// "https://host/tec/{{.Year}}/{{printf \"%02d\" .Month}}.h5.gz".
type DownloadConfig struct {
	MadrigalURL string        `yaml:"madrigalURL"`
	TECURL      string        `yaml:"tecURL"`
	ARBURL      string        `yaml:"arbURL"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SinksConfig enables the optional outputs. Empty values disable a sink.
type SinksConfig struct {
	VictoriaMetricsURL string           `yaml:"victoriaMetricsURL"`
	MetricPrefix       string           `yaml:"metricPrefix"`
	Catalog            string           `yaml:"catalog"`
	ClickHouse         ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig addresses the table receiving regridded cells.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// Canonical is the validated set of coordinate axes.
type Canonical struct {
	MadrigalLat grid.Axis
	MadrigalLon grid.Axis
	MLT         grid.Axis
	TECBins     grid.Axis
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Paths: PathsConfig{
			Root:     getEnv(DataDirEnv, "data"),
			Madrigal: "madrigal",
			TEC:      "tec",
			ARB:      "arb",
			Output:   "output",
		},
		Axes: AxesConfig{
			MadrigalLat: AxisConfig{Start: -90, Stop: 90, Step: 1},
			MadrigalLon: AxisConfig{Start: -180, Stop: 180, Step: 1},
			MLTVals:     AxisConfig{Start: -12, Stop: 11.5, Step: 0.5},
		},
		Download: DownloadConfig{Timeout: 5 * time.Minute},
		Sinks: SinksConfig{
			MetricPrefix: "tecgrid",
			ClickHouse:   ClickHouseConfig{Database: "default", Table: "regridded"},
		},
	}
}

// Load reads a YAML file over the defaults and validates the result. The
// data directory environment variable takes precedence over the file.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	c.Paths.Root = getEnv(DataDirEnv, c.Paths.Root)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate builds the canonical axes and checks the remaining settings.
func (c *Config) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid logLevel %q: %w", c.LogLevel, err)
	}
	if c.Paths.Root == "" && (c.Paths.Madrigal == "" || c.Paths.TEC == "" || c.Paths.ARB == "") {
		return errors.New("paths: root or every dataset directory is required")
	}
	if c.Axes.TECBins.empty() {
		c.Axes.TECBins = c.Axes.MLTVals
	}

	var errs []error
	build := func(name string, a AxisConfig) grid.Axis {
		axis, err := a.axis()
		if err != nil {
			errs = append(errs, fmt.Errorf("axes.%s: %w", name, err))
		}
		return axis
	}
	c.canonical = Canonical{
		MadrigalLat: build("madrigal_lat", c.Axes.MadrigalLat),
		MadrigalLon: build("madrigal_lon", c.Axes.MadrigalLon),
		MLT:         build("mlt_vals", c.Axes.MLTVals),
		TECBins:     build("tec_bins", c.Axes.TECBins),
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.LogLevel))
	return level
}

// Canonical returns the axes built by Validate.
func (c *Config) Canonical() Canonical {
	return c.canonical
}

// Dir resolves a dataset directory against the data root.
func (c *Config) Dir(dir string) string {
	if filepath.IsAbs(dir) || c.Paths.Root == "" {
		return dir
	}
	return filepath.Join(c.Paths.Root, dir)
}

func (a AxisConfig) empty() bool {
	return len(a.Values) == 0 && a.Step == 0
}

func (a AxisConfig) axis() (grid.Axis, error) {
	if len(a.Values) > 0 {
		return grid.NewAxis(a.Values)
	}
	return grid.Range(a.Start, a.Stop, a.Step)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
