// Package retry retries transient failures of outbound calls (feed fetches,
// embedding requests) with capped exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"
)

// Config describes one retry policy.
type Config struct {
	// MaxAttempts counts the first call. Values below 1 mean a single call.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// JitterFraction adds up to this share of each delay at random, in [0, 1].
	JitterFraction float64
}

// FeedFetchConfig is the policy for feed downloads: feeds are cheap to
// re-request, so transient errors get four attempts.
func FeedFetchConfig() Config {
	return Config{
		MaxAttempts:    4,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.1,
	}
}

// EmbeddingAPIConfig is the policy for embedding requests, which are billed.
// A 429 is never retried; it goes to the quota gate.
func EmbeddingAPIConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   2 * time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.1,
	}
}

// Delay returns the wait before retry number n (1-based), without jitter.
func (c Config) Delay(n int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 1; i < n; i++ {
		d *= c.Multiplier
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && time.Duration(d) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// WithBackoff calls fn until it succeeds, fails with a non-retryable error,
// or MaxAttempts is reached. When the failure carries a server Retry-After
// hint, the wait honours it up to MaxDelay.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry", slog.Int("attempt", attempt))
			}
			return nil
		}
		if !IsRetryable(lastErr) || attempt == attempts {
			break
		}

		delay := jitter(cfg.Delay(attempt), cfg.JitterFraction)
		var httpErr *HTTPError
		if errors.As(lastErr, &httpErr) && httpErr.RetryAfter > delay {
			delay = min(httpErr.RetryAfter, cfg.MaxDelay)
		}

		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
		}
	}

	if attempts > 1 && IsRetryable(lastErr) {
		return fmt.Errorf("max retry attempts (%d) exceeded: %w", attempts, lastErr)
	}
	return lastErr
}

// IsRetryable reports whether err is transient: network timeouts, refused or
// reset connections, 5xx and 408. Cancellation and 429 are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT, syscall.ENETUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusRequestTimeout
	}
	return false
}

// HTTPError is a non-2xx response. RetryAfter is the server's hint, zero
// when absent.
type HTTPError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ParseRetryAfter reads a Retry-After header given either as seconds or as
// an HTTP date. Missing, malformed or past values yield zero.
func ParseRetryAfter(h http.Header, now time.Time) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	fraction = min(fraction, 1)
	// #nosec G404 -- jitter does not need cryptographic randomness.
	return d + time.Duration(rand.Float64()*float64(d)*fraction)
}
