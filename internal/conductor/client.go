// Package conductor is the HTTP client for the Conductor QuickBooks Desktop
// API. Reads go through a per-end-user cache, list endpoints can be drained
// across cursors, and every failure is translated into the apierr taxonomy
// before it leaves the package.
package conductor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/leonardcser/qbd-mcp/internal/apierr"
	"github.com/leonardcser/qbd-mcp/internal/cache"
	"github.com/leonardcser/qbd-mcp/internal/metrics"
)

const (
	DefaultBaseURL  = "https://api.conductor.is/v1"
	RequestTimeout  = 30 * time.Second
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	EndUserHeader   = "Conductor-End-User-Id"
	RequestIDHeader = "X-Request-Id"
)

// Options configures New.
type Options struct {
	BaseURL   string
	SecretKey string
	// EndUserID is the default end-user for requests.
	EndUserID string

	// Cache stores successful reads. Nil disables caching.
	Cache cache.KV
	// CacheTTL is passed to Cache.Set; 0 uses the store default.
	CacheTTL time.Duration

	HTTPClient *http.Client
	// Timeout applies when HTTPClient is nil. Defaults to RequestTimeout.
	Timeout time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// RateLimit caps outgoing requests per second. 0 disables limiting.
	RateLimit float64
	// Retry is applied to GET requests when MaxRetries > 0.
	Retry apierr.RetryConfig
	// MaxPages caps GetAllPages. 0 drains until the upstream reports no more data.
	MaxPages int
}

type shared struct {
	baseURL   string
	secretKey string
	http      *http.Client
	cache     cache.KV
	cacheTTL  time.Duration
	log       *zap.Logger
	metrics   *metrics.Metrics
	limiter   *rate.Limiter
	retry     apierr.RetryConfig
	maxPages  int
	flight    singleflight.Group
}

// Client issues requests on behalf of one end-user. Clients derived with
// ForEndUser share the transport, cache and limiter.
type Client struct {
	s *shared

	mu        sync.RWMutex
	endUserID string
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	if opts.SecretKey == "" {
		return nil, errors.New("conductor: secret key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = RequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &shared{
		baseURL:   baseURL,
		secretKey: opts.SecretKey,
		http:      httpClient,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		log:       log.Named("conductor"),
		metrics:   opts.Metrics,
		retry:     opts.Retry,
		maxPages:  opts.MaxPages,
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{s: s, endUserID: opts.EndUserID}, nil
}

// EndUserID returns the end-user requests are currently issued for.
func (c *Client) EndUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endUserID
}

// SetEndUserID rebinds c; subsequent requests carry id.
func (c *Client) SetEndUserID(id string) {
	c.mu.Lock()
	c.endUserID = id
	c.mu.Unlock()
}

// ForEndUser returns a Client bound to id that shares c's transport and
// cache. An empty id, or the id c is already bound to, returns c.
func (c *Client) ForEndUser(id string) *Client {
	if id == "" || id == c.EndUserID() {
		return c
	}
	return &Client{s: c.s, endUserID: id}
}

// Get reads endpoint. With useCache, a fresh cached body is returned without
// contacting the upstream, and a successful response is cached under the
// end-user's key. Concurrent identical misses share one request.
func (c *Client) Get(ctx context.Context, endpoint string, params Params, useCache bool) (json.RawMessage, error) {
	endUser := c.EndUserID()
	if !useCache || c.s.cache == nil {
		return c.read(ctx, endpoint, params, endUser)
	}
	key, err := cache.GenerateKey(endpoint, params, endUser)
	if err != nil {
		return nil, apierr.Translate(err)
	}
	if body, err := c.s.cache.Get(key); err == nil {
		return body, nil
	}
	// The fetch is shared by every concurrent caller, so it outlives the
	// cancellation of whichever caller started it.
	shared := context.WithoutCancel(ctx)
	ch := c.s.flight.DoChan(key, func() (any, error) {
		body, err := c.read(shared, endpoint, params, endUser)
		if err != nil {
			return nil, err
		}
		c.s.cache.Set(key, body, c.s.cacheTTL)
		return body, nil
	})
	select {
	case <-ctx.Done():
		return nil, apierr.Translate(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

// Post sends body to endpoint. On success with invalidate, every cached read
// of the bound end-user is dropped.
func (c *Client) Post(ctx context.Context, endpoint string, body any, invalidate bool) (json.RawMessage, error) {
	endUser := c.EndUserID()
	out, err := c.do(ctx, http.MethodPost, endpoint, nil, body, endUser)
	if err != nil {
		return nil, err
	}
	if invalidate {
		c.invalidate(endUser)
	}
	return out, nil
}

// Delete removes the resource at endpoint, invalidating like Post.
func (c *Client) Delete(ctx context.Context, endpoint string, invalidate bool) (json.RawMessage, error) {
	endUser := c.EndUserID()
	out, err := c.do(ctx, http.MethodDelete, endpoint, nil, nil, endUser)
	if err != nil {
		return nil, err
	}
	if invalidate {
		c.invalidate(endUser)
	}
	return out, nil
}

// InvalidateCache drops every cached read of the bound end-user.
func (c *Client) InvalidateCache() {
	c.invalidate(c.EndUserID())
}

func (c *Client) invalidate(endUser string) {
	if c.s.cache == nil || endUser == "" {
		return
	}
	n := c.s.cache.InvalidateEndUser(endUser)
	c.s.log.Debug("invalidated cached reads", zap.String("endUserId", endUser), zap.Int("removed", n))
}

func (c *Client) read(ctx context.Context, endpoint string, params Params, endUser string) (json.RawMessage, error) {
	if c.s.retry.MaxRetries <= 0 {
		return c.do(ctx, http.MethodGet, endpoint, params, nil, endUser)
	}
	cfg := c.s.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.s.log.Warn("retrying request",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return apierr.RetryWithBackoff(ctx, cfg, func(ctx context.Context) (json.RawMessage, error) {
		return c.do(ctx, http.MethodGet, endpoint, params, nil, endUser)
	})
}

func (c *Client) do(ctx context.Context, method, endpoint string, params Params, body any, endUser string) (json.RawMessage, error) {
	if c.s.limiter != nil {
		if err := c.s.limiter.Wait(ctx); err != nil {
			return nil, apierr.Translate(err)
		}
	}

	u := c.s.baseURL + endpoint
	if q := params.Encode(); q != "" {
		u += "?" + q
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, apierr.Validation(fmt.Sprintf("Request body cannot be encoded: %v", err), nil)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, apierr.Translate(err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+c.s.secretKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent())
	req.Header.Set(RequestIDHeader, reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if endUser != "" {
		req.Header.Set(EndUserHeader, endUser)
	}

	log := c.s.log.With(
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.String("endUserId", endUser),
		zap.String("requestId", reqID),
	)
	log.Debug("api request", zap.Any("params", params))

	start := time.Now()
	resp, err := c.s.http.Do(req)
	if err != nil {
		c.s.metrics.ObserveUpstream(method, 0, time.Since(start))
		e := apierr.Translate(err)
		log.Error("api request failed", zap.String("code", e.Code), zap.Error(err))
		return nil, e
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	elapsed := time.Since(start)
	c.s.metrics.ObserveUpstream(method, resp.StatusCode, elapsed)
	if err != nil {
		e := apierr.Translate(err)
		log.Error("reading api response failed", zap.Int("status", resp.StatusCode), zap.Error(err))
		return nil, e
	}
	log.Debug("api response", zap.Int("status", resp.StatusCode), zap.Duration("elapsed", elapsed))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := apierr.Translate(&apierr.StatusError{
			StatusCode:  resp.StatusCode,
			Body:        data,
			ContentType: resp.Header.Get("Content-Type"),
		})
		log.Error("api error",
			zap.Int("status", resp.StatusCode),
			zap.String("kind", string(e.Kind)),
			zap.String("message", e.Message))
		return nil, e
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}
