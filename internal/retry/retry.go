// Package retry provides exponential-backoff retries for the HTTP collaborators
// (model providers, Steam, GamerPower).
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts (including the first).
	// Zero or negative values are treated as 1.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt; later delays double up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry classifies errors. When nil, IsRetryable is used.
	ShouldRetry func(err error) bool
}

// DefaultConfig suits short-lived JSON API calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

// HTTPError is a non-2xx response from an upstream API.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// IsRetryable reports whether err is worth another attempt:
// 429, 5xx and network timeouts are, everything else is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == http.StatusTooManyRequests || httpErr.Status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// ParseRetryAfter parses a Retry-After header given in seconds.
// HTTP-date values and garbage yield zero.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Do calls fn up to cfg.MaxAttempts times, backing off exponentially between
// attempts. A Retry-After hint on an HTTPError overrides the computed delay
// (still capped by MaxDelay). The result and error of the last attempt are returned.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	delay := cfg.InitialDelay
	var (
		result  T
		lastErr error
	)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, errors.Join(lastErr, err)
		}

		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if !shouldRetry(lastErr) || attempt == cfg.MaxAttempts {
			return result, lastErr
		}

		wait := delay
		var httpErr *HTTPError
		if errors.As(lastErr, &httpErr) && httpErr.RetryAfter > 0 {
			wait = min(httpErr.RetryAfter, cfg.MaxDelay)
		}

		slog.Debug("retry: attempt failed, retrying",
			"attempt", attempt, "max", cfg.MaxAttempts, "error", lastErr, "delay", wait)

		select {
		case <-ctx.Done():
			return result, errors.Join(lastErr, ctx.Err())
		case <-time.After(wait):
		}

		delay = min(delay*2, cfg.MaxDelay)
	}

	return result, lastErr
}
