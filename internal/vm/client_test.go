package vm

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/tecgrid/internal/grid"
	"github.com/rtm0/tecgrid/internal/regrid"
)

func arbResult() *regrid.Result {
	start := time.Unix(3600, 0)
	return &regrid.Result{
		Dataset: regrid.ARB,
		Name:    "mlat",
		Grid:    grid.Build(start, start.Add(2*time.Hour), time.Hour),
		Values:  grid.Array{Shape: []int{2, 2}, Data: []float64{60, math.NaN(), 61.5, 62}},
		Axes:    []regrid.Dim{{Name: "mlt", Values: []float64{-1, 1}}},
	}
}

type capture struct {
	paths    []string
	queries  []string
	bodies   []string
	encoding string
}

func (c *capture) server(t *testing.T, status int) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zr, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(zr)
		require.NoError(t, err)
		c.paths = append(c.paths, r.URL.Path)
		c.queries = append(c.queries, r.URL.Query().Get("format"))
		c.bodies = append(c.bodies, string(body))
		c.encoding = r.Header.Get("Content-Encoding")
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPoints(t *testing.T) {
	pts := Points(arbResult())
	require.Len(t, pts, 3)
	assert.Equal(t, Point{Dataset: "arb", Name: "mlat", Timestamp: 3600, X: -1, Value: 60}, pts[0])
	assert.Equal(t, 1.0, pts[2].X)
	assert.Equal(t, int64(7200), pts[2].Timestamp)
}

func TestClient_InsertInfluxDB(t *testing.T) {
	var c capture
	srv := c.server(t, http.StatusNoContent)

	cli, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL+"/write", 1, "tecgrid")
	require.NoError(t, err)
	require.NoError(t, cli.Insert(context.Background(), []Point{
		{Dataset: "madrigal", Name: "tec", Timestamp: 60, X: 10, Y: -5.5, HasY: true, Value: 12.25},
		{Dataset: "arb", Name: "mlat", Timestamp: 120, X: 1, Value: 65},
	}))

	assert.Equal(t, "gzip", c.encoding)
	assert.Equal(t, []string{"/write"}, c.paths)
	assert.Equal(t, ""+
		"tecgrid_tec,dataset=madrigal,x=10,y=-5.5 value=12.25 60000000000\n"+
		"tecgrid_mlat,dataset=arb,x=1 value=65 120000000000\n", c.bodies[0])
}

func TestClient_ExportCSV(t *testing.T) {
	var c capture
	srv := c.server(t, http.StatusNoContent)

	cli, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL+"/api/v1/import/csv", 1, "tecgrid")
	require.NoError(t, err)
	require.NoError(t, cli.Export(context.Background(), Points(arbResult()), 2))

	require.Len(t, c.bodies, 2)
	assert.Equal(t, "3600,arb,-1,,60\n7200,arb,-1,,61.5\n", c.bodies[0])
	assert.Equal(t, "7200,arb,1,,62\n", c.bodies[1])
	assert.True(t, strings.HasSuffix(c.queries[0], "5:metric:tecgrid_value"))
}

func TestClient_Errors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewClient(logger, "http://localhost:8428/unknown", 1, "tecgrid")
	assert.ErrorContains(t, err, "not supported")

	_, err = NewClient(logger, "http://localhost:8428/write", 1, "tec-grid")
	assert.ErrorContains(t, err, "metric prefix")

	var c capture
	srv := c.server(t, http.StatusBadRequest)
	cli, err := NewClient(logger, srv.URL+"/write", 1, "tecgrid")
	require.NoError(t, err)
	err = cli.Insert(context.Background(), []Point{{Dataset: "arb", Name: "mlat", Value: 1}})
	assert.ErrorContains(t, err, "unexpected status 400")
}
