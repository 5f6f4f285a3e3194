// Package metrics exposes prometheus instrumentation for the cache, the
// upstream client and the tool handlers. Every method is safe on a nil
// *Metrics so components can run uninstrumented.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qbd"

// Metrics holds the collectors registered by New.
type Metrics struct {
	registry *prometheus.Registry

	cacheEvents      *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	toolCalls        *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache events by type (hit, miss, set, expire, evict, invalidate).",
		}, []string{"event"}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests sent to the Conductor API by method and status.",
		}, []string{"method", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of Conductor API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "MCP tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}
	m.registry.MustRegister(m.cacheEvents, m.upstreamRequests, m.upstreamDuration, m.toolCalls)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// CacheEvent counts one cache event.
func (m *Metrics) CacheEvent(event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(event).Inc()
}

// CacheEvents adds n cache events.
func (m *Metrics) CacheEvents(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheEvents.WithLabelValues(event).Add(float64(n))
}

// ObserveUpstream records one upstream request. A status of 0 means no
// response was received.
func (m *Metrics) ObserveUpstream(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.upstreamRequests.WithLabelValues(method, label).Inc()
	m.upstreamDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ToolCall counts one tool invocation.
func (m *Metrics) ToolCall(tool string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// CacheHooks adapts m to the cache hook interface.
func (m *Metrics) CacheHooks() CacheHooks { return CacheHooks{m: m} }

// CacheHooks counts cache events. It satisfies cache.Hooks.
type CacheHooks struct{ m *Metrics }

func (h CacheHooks) Hit(string)     { h.m.CacheEvent("hit") }
func (h CacheHooks) Miss(string)    { h.m.CacheEvent("miss") }
func (h CacheHooks) Stored(string)  { h.m.CacheEvent("set") }
func (h CacheHooks) Expired(string) { h.m.CacheEvent("expire") }
func (h CacheHooks) Evicted(string) { h.m.CacheEvent("evict") }
func (h CacheHooks) Invalidated(_ string, n int) {
	h.m.CacheEvents("invalidate", n)
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
