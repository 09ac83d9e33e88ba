package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rtm0/tecgrid/internal/config"
	"github.com/rtm0/tecgrid/internal/regrid"
)

var (
	configPath = flag.String("config", "", "path to a YAML configuration file; built-in defaults are used when empty")
	datasets   = flag.String("dataset", "tec,arb", "comma-separated datasets to regrid: madrigal, tec, arb")
	startFlag  = flag.String("start", "", "start of the requested range, RFC 3339 or YYYY-MM-DD")
	endFlag    = flag.String("end", "", "exclusive end of the requested range, RFC 3339 or YYYY-MM-DD")
	dt         = flag.Duration("dt", time.Hour, "output cadence for the tec and arb datasets; madrigal is always 5m")
	outDir     = flag.String("out", "", "output directory; overrides paths.output")
	withParq   = flag.Bool("parquet", false, "also write a long-format Parquet table per dataset")
	withQL     = flag.Bool("quicklook", false, "also write a PNG quick-look per dataset")
	download   = flag.Bool("download", false, "fetch missing archive files before regridding")
)

func main() {
	flag.Parse()
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("Could not load configuration", "path", *configPath, "err", err)
		os.Exit(1)
	}
	logLevel.Set(cfg.Level())
	if *outDir != "" {
		cfg.Paths.Output = *outDir
	}

	req, err := parseRequest(*datasets, *startFlag, *endFlag, *dt)
	if err != nil {
		logger.Error("Invalid request", "err", err)
		flag.Usage()
		os.Exit(2)
	}
	req.Parquet, req.Quicklook, req.Download = *withParq, *withQL, *download

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, req, logger); err != nil {
		logger.Error("Regridding failed", "err", err)
		cancel()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// request is one invocation of the command.
type request struct {
	Datasets   []regrid.Dataset
	Start, End time.Time
	Step       time.Duration
	Parquet    bool
	Quicklook  bool
	Download   bool
}

func parseRequest(datasets, start, end string, step time.Duration) (request, error) {
	var req request
	for _, name := range strings.Split(datasets, ",") {
		ds := regrid.Dataset(strings.TrimSpace(name))
		switch ds {
		case regrid.Madrigal, regrid.TEC, regrid.ARB:
			req.Datasets = append(req.Datasets, ds)
		case "":
		default:
			return req, fmt.Errorf("unknown dataset %q", name)
		}
	}
	if len(req.Datasets) == 0 {
		return req, fmt.Errorf("no dataset selected")
	}
	var err error
	if req.Start, err = parseTime(start); err != nil {
		return req, fmt.Errorf("parsing -start: %w", err)
	}
	if req.End, err = parseTime(end); err != nil {
		return req, fmt.Errorf("parsing -end: %w", err)
	}
	if !req.End.After(req.Start) {
		return req, fmt.Errorf("end %s is not after start %s", req.End, req.Start)
	}
	if step < time.Second {
		return req, fmt.Errorf("cadence %s is below one second", step)
	}
	req.Step = step
	return req, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("value required")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q", s)
}
