package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-oilprice-trend/internal/config"
	"github.com/johnayoung/go-oilprice-trend/internal/errors"
	"github.com/johnayoung/go-oilprice-trend/internal/logger"
	"github.com/johnayoung/go-oilprice-trend/internal/metrics"
	"github.com/johnayoung/go-oilprice-trend/internal/models"
	"github.com/johnayoung/go-oilprice-trend/internal/rpc"
	"github.com/johnayoung/go-oilprice-trend/internal/validator"
)

type stubProvider struct {
	series models.PriceSeries
	err    error
}

func (p *stubProvider) FetchPrices(_ context.Context, start, end time.Time) (models.PriceSeries, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.series.Between(start, end), nil
}

type stubHealth struct{ err error }

func (h stubHealth) HealthCheck(context.Context) error { return h.err }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testSeries() models.PriceSeries {
	return models.PriceSeries{
		models.NewPricePoint(day(2019, 12, 31), decimal.NewFromInt(61)),
		models.NewPricePoint(day(2020, 1, 1), decimal.NewFromInt(50)),
		models.NewPricePoint(day(2020, 1, 3), decimal.RequireFromString("52.5")),
		models.NewPricePoint(day(2020, 1, 6), decimal.NewFromInt(49)),
	}
}

func newTestServer(t *testing.T, provider *stubProvider, opts ...Option) *Server {
	t.Helper()
	lm := logger.NewLoggerManagerWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, io.Discard)
	d := rpc.NewDispatcher(provider, validator.New(), lm.GetComponentLogger("rpc"), nil)
	cfg := config.ServerConfig{Host: "127.0.0.1", Port: 0}
	return New(cfg, d, lm.GetComponentLogger("server"), opts...)
}

func post(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, body map[string]interface{}) int {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "response has no error object: %v", body)
	return int(e["code"].(float64))
}

const validCall = `{"jsonrpc":"2.0","method":"GetOilPriceTrend","params":{"startDateISO8601":"2020-01-01","endDateISO8601":"2020-01-05"},"id":1}`

func TestServer_RPCSuccess(t *testing.T) {
	s := newTestServer(t, &stubProvider{series: testSeries()})

	for _, path := range []string{"/api/oilprice", "/"} {
		t.Run(path, func(t *testing.T) {
			rec := post(t, s, path, validCall)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
			assert.JSONEq(t,
				`{"jsonrpc":"2.0","id":1,"result":{"prices":[{"date":"2020-01-01","price":50},{"date":"2020-01-03","price":52.5}]}}`,
				rec.Body.String())
		})
	}
}

func TestServer_RequestIDPropagated(t *testing.T) {
	s := newTestServer(t, &stubProvider{series: testSeries()})

	req := httptest.NewRequest(http.MethodPost, "/api/oilprice", strings.NewReader(validCall))
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestServer_RPCErrors(t *testing.T) {
	tests := []struct {
		name       string
		provider   *stubProvider
		body       string
		wantStatus int
		wantCode   int
		wantID     int
	}{
		{
			name:       "malformed json",
			provider:   &stubProvider{},
			body:       `{"jsonrpc":"2.0",`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.CodeParseError,
		},
		{
			name:       "unknown method",
			provider:   &stubProvider{},
			body:       `{"jsonrpc":"2.0","method":"GetGoldPrice","params":{},"id":2}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.CodeMethodNotFound,
			wantID:     2,
		},
		{
			name:       "null params",
			provider:   &stubProvider{},
			body:       `{"jsonrpc":"2.0","method":"GetOilPriceTrend","params":null,"id":3}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.CodeInvalidParams,
			wantID:     3,
		},
		{
			name:       "undecodable date",
			provider:   &stubProvider{},
			body:       `{"jsonrpc":"2.0","method":"GetOilPriceTrend","params":{"startDateISO8601":"soon","endDateISO8601":"2020-01-05"},"id":4}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.CodeInvalidParams,
			wantID:     4,
		},
		{
			name:       "unknown method with undecodable params",
			provider:   &stubProvider{},
			body:       `{"jsonrpc":"2.0","method":"NoSuchMethod","params":{"startDateISO8601":"yesterday","endDateISO8601":"2020-01-05"},"id":7}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.CodeMethodNotFound,
			wantID:     7,
		},
		{
			name:       "time of day",
			provider:   &stubProvider{},
			body:       `{"jsonrpc":"2.0","method":"GetOilPriceTrend","params":{"startDateISO8601":"2020-01-01T10:00:00Z","endDateISO8601":"2020-01-05"},"id":5}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.CodeInvalidParams,
			wantID:     5,
		},
		{
			name:       "reversed range",
			provider:   &stubProvider{err: errors.InvalidRange("upstream", "start date must be less than or equal to end date")},
			body:       `{"jsonrpc":"2.0","method":"GetOilPriceTrend","params":{"startDateISO8601":"2020-01-05","endDateISO8601":"2020-01-01"},"id":6}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.CodeInvalidRange,
			wantID:     6,
		},
		{
			name:       "upstream unavailable",
			provider:   &stubProvider{err: errors.UpstreamUnavailable("fetch", fmt.Errorf("connection refused"))},
			body:       validCall,
			wantStatus: http.StatusBadGateway,
			wantCode:   errors.CodeUpstreamUnavailable,
			wantID:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.provider)
			rec := post(t, s, "/api/oilprice", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "2.0", body["jsonrpc"])
			assert.Equal(t, float64(tt.wantID), body["id"])
			assert.NotContains(t, body, "result")
			assert.Equal(t, tt.wantCode, errorCode(t, body))
		})
	}
}

func TestServer_OversizedBody(t *testing.T) {
	s := newTestServer(t, &stubProvider{})
	rec := post(t, s, "/api/oilprice", strings.Repeat(" ", maxBodyBytes+1))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeParseError, errorCode(t, decode(t, rec)))
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &stubProvider{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/oilprice", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_HealthEndpoints(t *testing.T) {
	t.Run("liveness", func(t *testing.T) {
		s := newTestServer(t, &stubProvider{})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("ready", func(t *testing.T) {
		s := newTestServer(t, &stubProvider{}, WithHealthChecker(stubHealth{}))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not ready", func(t *testing.T) {
		s := newTestServer(t, &stubProvider{}, WithHealthChecker(stubHealth{err: fmt.Errorf("upstream returned 503")}))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"unavailable","error":"upstream returned 503"}`, rec.Body.String())
	})
}

func TestServer_MetricsEndpoint(t *testing.T) {
	m := metrics.New()
	s := newTestServer(t, &stubProvider{series: testSeries()}, WithMetrics(m, "/metrics"))

	post(t, s, "/api/oilprice", validCall)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `oilprice_http_requests_total{method="POST",path="/api/oilprice",status="200"} 1`)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s := newTestServer(t, &stubProvider{series: testSeries()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/api/oilprice", "application/json", strings.NewReader(validCall))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestServer_UnreadableDateReportsBothFields(t *testing.T) {
	s := newTestServer(t, &stubProvider{series: testSeries()})
	rec := post(t, s, "/api/oilprice", `{"jsonrpc":"2.0","method":"GetOilPriceTrend","params":{"startDateISO8601":"yesterday"},"id":8}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":8,"error":{"code":-32602,"message":"Invalid params","data":[
		{"field":"StartDateISO8601","message":"StartDateISO8601 must be a valid date with only year, month, and day."},
		{"field":"EndDateISO8601","message":"EndDateISO8601 is required."}
	]}}`, rec.Body.String())
}

func TestServer_ParseErrorsAreCounted(t *testing.T) {
	m := metrics.New()
	s := newTestServer(t, &stubProvider{}, WithMetrics(m, "/metrics"))

	rec := post(t, s, "/api/oilprice", `{"jsonrpc":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `oilprice_rpc_calls_total{method="unknown",outcome="parse_error"} 1`)
}
