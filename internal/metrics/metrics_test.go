package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheEvent("hit")
		m.CacheEvents("invalidate", 3)
		m.ObserveUpstream("GET", 200, time.Millisecond)
		m.ToolCall("list_accounts", true)
		m.CacheHooks().Hit("k")
	})
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	hooks := m.CacheHooks()
	hooks.Hit("a")
	hooks.Hit("b")
	hooks.Miss("c")
	hooks.Invalidated("end_usr_1|", 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheEvents.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheEvents.WithLabelValues("miss")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.cacheEvents.WithLabelValues("invalidate")))

	m.ObserveUpstream("GET", 200, 10*time.Millisecond)
	m.ObserveUpstream("POST", 0, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("POST", "error")))

	m.ToolCall("get_bill", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("get_bill", "error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ToolCall("list_bills", true)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `qbd_tool_calls_total{outcome="success",tool="list_bills"} 1`)
}
