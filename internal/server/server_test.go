package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/metrics"
	"github.com/aristath/allocator/internal/modules/runs"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	table domain.PriceTable
	err   error
}

func (s stubLoader) Load(string) (domain.PriceTable, error) {
	return s.table, s.err
}

type stubHistory struct {
	runs []runs.Run
}

func (s stubHistory) List(_ context.Context, limit int) ([]runs.Run, error) {
	if limit < len(s.runs) {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

type pingModule struct{}

func (pingModule) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "allocator.db"), Name: "allocator"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func month(m int) time.Time {
	return time.Date(2006, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, m, 0)
}

func newTestServer(t *testing.T, loader PriceLoader) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	history := stubHistory{runs: []runs.Run{{ID: "latest", Trigger: runs.TriggerCLI}}}
	srv := New(Config{
		Log:      zerolog.Nop(),
		Port:     0,
		DevMode:  true,
		System:   NewSystemHandlers(newTestDB(t), loader, "prices", history, zerolog.Nop()),
		Modules:  []RouteRegistrar{pingModule{}},
		Metrics:  m,
		Gatherer: reg,
	})
	return srv, reg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, stubLoader{})

	rec := get(t, srv.Handler(), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestServer_ModuleRoutesMountedUnderAPI(t *testing.T) {
	srv, _ := newTestServer(t, stubLoader{})

	rec := get(t, srv.Handler(), "/api/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/ping").Code)
}

func TestServer_MetricsEndpointCountsRequests(t *testing.T) {
	srv, _ := newTestServer(t, stubLoader{})
	get(t, srv.Handler(), "/health")
	get(t, srv.Handler(), "/missing")

	rec := get(t, srv.Handler(), "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `allocator_http_requests_total{code="200",method="GET"} 1`)
	assert.Contains(t, body, `allocator_http_requests_total{code="404",method="GET"} 1`)
}

func TestServer_NoGathererNoMetrics(t *testing.T) {
	srv := New(Config{Log: zerolog.Nop(), DevMode: true})

	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/health").Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, stubLoader{})
	req := httptest.NewRequest(http.MethodOptions, "/api/ping", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSystemHandlers_Status(t *testing.T) {
	srv, _ := newTestServer(t, stubLoader{})

	rec := get(t, srv.Handler(), "/api/system/status")

	require.Equal(t, http.StatusOK, rec.Code)
	var body SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Database)
	assert.Greater(t, body.Goroutines, 0)
	assert.True(t, strings.HasPrefix(body.GoVersion, "go"))
	require.NotNil(t, body.LastRun)
	assert.Equal(t, "latest", body.LastRun.ID)
}

func TestSystemHandlers_PriceCoverage(t *testing.T) {
	table := domain.PriceTable{
		"SPY": {{Date: month(0), Close: 100}, {Date: month(1), Close: 101}, {Date: month(2), Close: 102}},
		"BA":  {{Date: month(0), Close: 50}, {Date: month(2), Close: 52}},
	}
	srv, _ := newTestServer(t, stubLoader{table: table})

	rec := get(t, srv.Handler(), "/api/system/prices")

	require.Equal(t, http.StatusOK, rec.Code)
	var body PriceCoverageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "prices", body.Dir)
	assert.False(t, body.Complete)
	require.Len(t, body.Assets, 2)
	assert.Equal(t, "BA", body.Assets[0].Asset)
	assert.Equal(t, 1, body.Assets[0].Missing)
	assert.Equal(t, 0, body.Assets[1].Missing)
}

func TestSystemHandlers_PriceCoverageLoadError(t *testing.T) {
	srv, _ := newTestServer(t, stubLoader{err: errors.New("no csv files")})

	rec := get(t, srv.Handler(), "/api/system/prices")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "no csv files")
}

func TestSystemHandlers_DatabaseStats(t *testing.T) {
	srv, _ := newTestServer(t, stubLoader{})

	rec := get(t, srv.Handler(), "/api/system/database/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	var stats database.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Greater(t, stats.PageSize, int64(0))
}
