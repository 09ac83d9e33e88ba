package vm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/rtm0/tecgrid/internal/grid"
	"github.com/rtm0/tecgrid/internal/regrid"
)

// Point is one valid regridded cell. X and Y are the cell's coordinates on
// the result's first and second spatial axes; Y is unused for results with a
// single axis.
type Point struct {
	Dataset   string
	Name      string
	Timestamp int64
	X, Y      float64
	HasY      bool
	Value     float64
}

// Points returns the non-missing cells of a result, time major.
func Points(res *regrid.Result) []Point {
	x := res.Axes[0].Values
	var y []float64
	if len(res.Axes) > 1 {
		y = res.Axes[1].Values
	}
	var pts []Point
	for i, u := range res.Grid.Unix {
		for k, v := range res.Values.Row(i) {
			if grid.IsMissing(v) {
				continue
			}
			p := Point{Dataset: string(res.Dataset), Name: res.Name, Timestamp: u, Value: v}
			if y == nil {
				p.X = x[k]
			} else {
				p.X, p.Y, p.HasY = x[k/len(y)], y[k%len(y)], true
			}
			pts = append(pts, p)
		}
	}
	return pts
}

// Client is a Victoria Metrics client capable of inserting regridded cells
// via various protocols.
type Client struct {
	logger       *slog.Logger
	httpCli      *http.Client
	insertURL    string
	metricPrefix string
	pointToText  pointToTextFunc
}

const metricPrefixRE = "^[a-zA-Z0-9]+$"

// NewClient creates a new VM client.
func NewClient(logger *slog.Logger, insertURL string, maxConns int, metricPrefix string) (*Client, error) {
	url, err := url.Parse(insertURL)
	if err != nil {
		return nil, err
	}

	matches, err := regexp.MatchString(metricPrefixRE, metricPrefix)
	if err != nil {
		return nil, err
	}
	if !matches {
		return nil, fmt.Errorf("metric prefix %q does not match %q regular expression", metricPrefix, metricPrefixRE)
	}

	pointToText := pointToTextFuncs[url.Path]
	if pointToText == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}
	if apiParams := apiParamsFuncs[url.Path]; apiParams != nil {
		q := url.Query()
		for name, value := range apiParams(metricPrefix) {
			q.Add(name, value)
		}
		url.RawQuery = q.Encode()
	}

	return &Client{
		logger: logger,
		httpCli: &http.Client{
			Timeout: time.Minute,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        maxConns,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: maxConns,
				MaxConnsPerHost:     maxConns,
			},
		},
		insertURL:    url.String(),
		metricPrefix: metricPrefix,
		pointToText:  pointToText,
	}, nil
}

// Insert posts points as one gzip-compressed request.
func (c *Client) Insert(ctx context.Context, pts []Point) error {
	body, err := gzipText(pts, c.metricPrefix, c.pointToText)
	if err != nil {
		return fmt.Errorf("compressing points: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.insertURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Content-Encoding", "gzip")

	res, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("posting points: %w", err)
	}
	defer res.Body.Close()
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		c.logger.Error("Failed to drain response body", "err", err)
	}
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", res.StatusCode, c.insertURL)
	}
	return nil
}

// Export inserts points in batches of batchSize, one request at a time.
func (c *Client) Export(ctx context.Context, pts []Point, batchSize int) error {
	start := time.Now()
	for begin := 0; begin < len(pts); begin += batchSize {
		limit := min(begin+batchSize, len(pts))
		if err := c.Insert(ctx, pts[begin:limit]); err != nil {
			return err
		}
		c.logger.Debug("progress",
			"inserted", fmt.Sprintf("%.2f%%", 100*float64(limit)/float64(len(pts))),
			"in", time.Since(start).Round(time.Second))
	}
	return nil
}

type apiParamsFunc func(string) map[string]string

var apiParamsFuncs = map[string]apiParamsFunc{
	"/api/v1/import/csv": csvAPIParams,
}

func csvAPIParams(metricPrefix string) map[string]string {
	return map[string]string{
		"format": fmt.Sprintf(""+
			"1:time:unix_s,"+
			"2:label:dataset,"+
			"3:label:x,"+
			"4:label:y,"+
			"5:metric:%s_value", metricPrefix),
	}
}

type pointToTextFunc func(*strings.Builder, *Point, string)

// gzipText converts points to text, one per line, and compresses it.
func gzipText(pts []Point, metricPrefix string, pointToText pointToTextFunc) (io.Reader, error) {
	var sb strings.Builder
	for i := range pts {
		pointToText(&sb, &pts[i], metricPrefix)
		sb.WriteString("\n")
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := io.WriteString(zw, sb.String()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

var pointToTextFuncs = map[string]pointToTextFunc{
	"/influx/write":        pointToInfluxDB,
	"/influx/api/v2/write": pointToInfluxDB,
	"/write":               pointToInfluxDB,
	"/api/v2/write":        pointToInfluxDB,
	"/api/v1/import/csv":   pointToCSV,
}

// pointToInfluxDB converts a point into InfluxDB line protocol and appends
// it to the string builder. Timestamps are sent in nanoseconds.
func pointToInfluxDB(sb *strings.Builder, p *Point, metricPrefix string) {
	fmt.Fprintf(sb, "%s_%s,dataset=%s,x=%g", metricPrefix, p.Name, p.Dataset, p.X)
	if p.HasY {
		fmt.Fprintf(sb, ",y=%g", p.Y)
	}
	fmt.Fprintf(sb, " value=%g %d", p.Value, p.Timestamp*int64(time.Second))
}

// pointToCSV converts a point into a CSV record and appends it to the
// string builder.
func pointToCSV(sb *strings.Builder, p *Point, _ string) {
	y := ""
	if p.HasY {
		y = fmt.Sprintf("%g", p.Y)
	}
	fmt.Fprintf(sb, "%d,%s,%g,%s,%g", p.Timestamp, p.Dataset, p.X, y, p.Value)
}
