package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rtm0/tecgrid/internal/archive"
	"github.com/rtm0/tecgrid/internal/catalog"
	"github.com/rtm0/tecgrid/internal/config"
	"github.com/rtm0/tecgrid/internal/export"
	"github.com/rtm0/tecgrid/internal/quicklook"
	"github.com/rtm0/tecgrid/internal/regrid"
	"github.com/rtm0/tecgrid/internal/vm"
)

const vmBatchSize = 5000

// sinks holds the optional outputs enabled in the configuration.
type sinks struct {
	catalog    *catalog.SqliteStore
	clickhouse *export.ClickHouseSink
	vm         *vm.Client
	closers    []func() error
}

func openSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sinks, error) {
	s := &sinks{}
	if cfg.Sinks.Catalog != "" {
		s.catalog = catalog.NewSqliteStore(cfg.Sinks.Catalog)
		s.closers = append(s.closers, s.catalog.Close)
	}
	if ch := cfg.Sinks.ClickHouse; ch.Addr != "" {
		sink, conn, err := export.DialClickHouse(ctx, ch.Addr, ch.Database, ch.Table)
		if err != nil {
			return nil, errors.Join(err, s.close())
		}
		s.clickhouse = sink
		s.closers = append(s.closers, conn.Close)
	}
	if cfg.Sinks.VictoriaMetricsURL != "" {
		cli, err := vm.NewClient(logger, cfg.Sinks.VictoriaMetricsURL, 1, cfg.Sinks.MetricPrefix)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("creating VM client: %w", err), s.close())
		}
		s.vm = cli
	}
	return s, nil
}

func (s *sinks) close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// run regrids every requested dataset in turn and writes its outputs. The
// first hard failure aborts the remaining datasets.
func run(ctx context.Context, cfg *config.Config, req request, logger *slog.Logger) (err error) {
	out := cfg.Dir(cfg.Paths.Output)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	s, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := s.close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing sinks: %w", cErr)
		}
	}()

	loader := regrid.NewLoader(cfg, logger)
	for _, ds := range req.Datasets {
		if err := ctx.Err(); err != nil {
			return err
		}
		dsLogger := logger.With("dataset", string(ds))
		if req.Download {
			if err := fetch(ctx, cfg, ds, req, dsLogger); err != nil {
				return err
			}
		}
		res, err := loader.Load(ds, req.Start, req.End, req.Step)
		if err != nil {
			return fmt.Errorf("regridding %s: %w", ds, err)
		}
		logger.Info("regridded", res.Summary()...)

		base := filepath.Join(out, fmt.Sprintf("%s_%s_%s", ds, req.Start.Format("20060102"), req.End.Format("20060102")))
		if err := writeOutputs(ctx, base, res, req, s, dsLogger); err != nil {
			return err
		}
	}
	return nil
}

func fetch(ctx context.Context, cfg *config.Config, ds regrid.Dataset, req request, logger *slog.Logger) error {
	var (
		dir, url string
		gran     = archive.Monthly
	)
	switch ds {
	case regrid.Madrigal:
		dir, url, gran = cfg.Paths.Madrigal, cfg.Download.MadrigalURL, archive.Daily
	case regrid.TEC:
		dir, url = cfg.Paths.TEC, cfg.Download.TECURL
	case regrid.ARB:
		dir, url = cfg.Paths.ARB, cfg.Download.ARBURL
	}
	if url == "" {
		logger.Warn("no download URL configured")
		return nil
	}
	d, err := archive.NewHTTPDownloader(cfg.Dir(dir), gran, url, cfg.Download.Timeout, logger)
	if err != nil {
		return err
	}
	outcome, err := d.Download(ctx, req.Start, req.End)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", ds, err)
	}
	logger.Info("download finished",
		"downloaded", outcome.Downloaded,
		"skipped", outcome.Skipped,
		"failed", outcome.Failed,
		"bytes", outcome.Bytes)
	return nil
}

func writeOutputs(ctx context.Context, base string, res *regrid.Result, req request, s *sinks, logger *slog.Logger) error {
	if err := export.WriteYAML(base+".yaml", export.Metadata(res)); err != nil {
		return err
	}
	output := base + ".yaml"
	if res.Grid.Len() == 0 {
		// The container cannot hold zero-length variables.
		logger.Warn("Requested range rounds to an empty time grid, writing metadata only",
			"start", req.Start, "end", req.End, "cadence", res.Grid.Step)
	} else {
		output = base + ".nc"
		if err := writeCells(ctx, base, res, req, s, logger); err != nil {
			return err
		}
	}
	logger.Info("wrote outputs", "file", output)

	if s.catalog != nil {
		id, err := s.catalog.CreateRun(ctx, catalog.Run{
			Dataset: string(res.Dataset),
			Start:   req.Start,
			End:     req.End,
			Cadence: res.Grid.Step,
			Output:  output,
		})
		if err != nil {
			return err
		}
		if err := s.catalog.RecordReport(ctx, id, res); err != nil {
			return err
		}
		logger.Info("recorded run", "id", id)
	}
	return nil
}

// writeCells writes the container and every optional per-cell output of a
// non-empty result.
func writeCells(ctx context.Context, base string, res *regrid.Result, req request, s *sinks, logger *slog.Logger) error {
	if err := export.WriteNetCDF(base+".nc", export.Variables(res)...); err != nil {
		return err
	}
	if req.Parquet {
		if err := export.WriteParquet(base+".parquet", res); err != nil {
			return err
		}
	}
	if req.Quicklook {
		img, err := quicklook.Render(res, 0, quicklook.Options{})
		if err != nil {
			return fmt.Errorf("rendering quick-look: %w", err)
		}
		if err := quicklook.WritePNG(base+".png", img); err != nil {
			return err
		}
	}
	if s.clickhouse != nil {
		n, err := s.clickhouse.Insert(ctx, res)
		if err != nil {
			return err
		}
		logger.Info("inserted into clickhouse", "rows", n)
	}
	if s.vm != nil {
		if err := s.vm.Export(ctx, vm.Points(res), vmBatchSize); err != nil {
			return fmt.Errorf("exporting to VM: %w", err)
		}
	}
	return nil
}
