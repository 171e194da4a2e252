package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recorders(t *testing.T) {
	m := New()

	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	m.RecordCachePopulation(42, nil)
	m.RecordCachePopulation(0, errors.New("upstream down"))
	m.RecordUpstreamFetch("ok", 150*time.Millisecond)
	m.RecordRPCCall("GetOilPriceTrend", "ok")
	m.RecordHTTPRequest("post", "/api/oilprice", http.StatusOK, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cachePopulations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cachePopulations.WithLabelValues("error")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.cacheEntrySize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamFetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rpcCalls.WithLabelValues("GetOilPriceTrend", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/oilprice", "200")))
}

func TestMetrics_InFlight(t *testing.T) {
	m := New()
	done := m.InFlight()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpInFlight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInFlight))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCacheLookup(true)
		m.RecordCachePopulation(1, nil)
		m.RecordUpstreamFetch("ok", time.Second)
		m.RecordRPCCall("x", "ok")
		m.RecordHTTPRequest("GET", "/", 200, time.Second)
		m.InFlight()()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordCacheLookup(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `oilprice_cache_lookups_total{result="hit"} 1`)
}
