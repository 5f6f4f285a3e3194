package apierr

import (
	"context"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// RetryConfig configures RetryWithBackoff.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first. Negative means 0.
	MaxRetries int
	// BaseDelay is the wait before the first retry; each later retry doubles it.
	BaseDelay time.Duration
	// OnRetry, if set, is called before waiting for retry attempt (1-based).
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns 3 retries starting at one second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

// RetryWithBackoff runs op up to MaxRetries+1 times, waiting BaseDelay*2^n
// between attempts. Validation, authentication, permission and not-found
// failures are returned immediately. The last failure is returned once
// retries are exhausted, and ctx cancellation aborts the wait.
func RetryWithBackoff[T any](ctx context.Context, cfg RetryConfig, op func(context.Context) (T, error)) (T, error) {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.BaseDelay << (attempt - 1)
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr, delay)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if isTerminal(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

func isTerminal(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindAuthentication, KindPermission, KindNotFound:
		return true
	}
	return false
}

// IsRetryable reports whether err is worth retrying: upstream unavailability,
// rate limiting, connectivity failures and server-side statuses.
func IsRetryable(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case KindUpstreamUnavailable, KindRateLimit:
		return true
	}
	switch e.Code {
	case CodeConnRefused, CodeNotFound, CodeTimeout, CodeNetwork:
		return true
	}
	return e.StatusCode >= 500
}
