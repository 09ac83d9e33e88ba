package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/pgzip"
)

// Downloader populates an archive directory with the files covering a time
// range. Regridding only depends on the resulting directory layout.
type Downloader interface {
	Download(ctx context.Context, start, end time.Time) (Outcome, error)
}

// Outcome summarises a download pass.
type Outcome struct {
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      uint64
}

// HTTPDownloader fetches one file per unit from a mirror whose URLs are
// produced by a text/template rendered with the Unit. Payloads ending in .gz
// are decompressed on the fly. Failed units are logged and counted; there are
// no retries.
type HTTPDownloader struct {
	Dir         string
	Granularity Granularity
	URL         *template.Template
	Client      *http.Client
	Logger      *slog.Logger
}

// NewHTTPDownloader parses urlTemplate, e.g.
// "https://mirror.example.org/tec/{{.Year}}/{{printf \"%04d_%02d_tec.h5\" .Year .Month}}".
func NewHTTPDownloader(dir string, gran Granularity, urlTemplate string, timeout time.Duration, logger *slog.Logger) (*HTTPDownloader, error) {
	tmpl, err := template.New("url").Option("missingkey=error").Parse(urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing URL template: %w", err)
	}
	return &HTTPDownloader{
		Dir:         dir,
		Granularity: gran,
		URL:         tmpl,
		Client:      &http.Client{Timeout: timeout},
		Logger:      logger,
	}, nil
}

// Download fetches every unit overlapping [start, end) that is not already
// present in Dir.
func (d *HTTPDownloader) Download(ctx context.Context, start, end time.Time) (Outcome, error) {
	var out Outcome
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return out, fmt.Errorf("creating archive directory: %w", err)
	}
	for _, u := range UnitsBetween(start, end, d.Granularity) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var sb strings.Builder
		if err := d.URL.Execute(&sb, u); err != nil {
			return out, fmt.Errorf("rendering URL for %s: %w", u, err)
		}
		url := sb.String()
		name := strings.TrimSuffix(path.Base(url), ".gz")
		dest := filepath.Join(d.Dir, name)
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			out.Skipped++
			continue
		}
		n, err := d.fetch(ctx, url, dest)
		if err != nil {
			d.Logger.Warn("download failed", "unit", u.String(), "url", url, "err", err)
			out.Failed++
			continue
		}
		d.Logger.Info("downloaded", "unit", u.String(), "file", dest, "size", humanize.Bytes(n))
		out.Downloaded++
		out.Bytes += n
	}
	return out, nil
}

func (d *HTTPDownloader) fetch(ctx context.Context, url, dest string) (n uint64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	res, err := d.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	var body io.Reader = res.Body
	if strings.HasSuffix(url, ".gz") {
		zr, err := pgzip.NewReader(res.Body)
		if err != nil {
			return 0, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer zr.Close()
		body = zr
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}
	written, err := io.Copy(f, body)
	err = errors.Join(err, f.Close())
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("writing file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("renaming file: %w", err)
	}
	return uint64(written), nil
}
