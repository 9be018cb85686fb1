package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   5 * time.Millisecond,
		MaxDelay:       20 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

func TestWithBackoff(t *testing.T) {
	tests := []struct {
		name         string
		errs         []error
		wantAttempts int
		wantErr      bool
	}{
		{
			name:         "success first time",
			errs:         []error{nil},
			wantAttempts: 1,
		},
		{
			name: "success after server errors",
			errs: []error{
				&HTTPError{StatusCode: 502, Message: "bad gateway"},
				syscall.ECONNRESET,
				nil,
			},
			wantAttempts: 3,
		},
		{
			name:         "non-retryable stops at once",
			errs:         []error{&HTTPError{StatusCode: 404, Message: "feed gone"}},
			wantAttempts: 1,
			wantErr:      true,
		},
		{
			name:         "rate limit is not retried",
			errs:         []error{&HTTPError{StatusCode: 429, Message: "slow down"}},
			wantAttempts: 1,
			wantErr:      true,
		},
		{
			name: "exhausted",
			errs: []error{
				&HTTPError{StatusCode: 500}, &HTTPError{StatusCode: 500}, &HTTPError{StatusCode: 500},
			},
			wantAttempts: 3,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := WithBackoff(context.Background(), fastConfig(), func() error {
				e := tt.errs[attempts]
				attempts++
				return e
			})

			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithBackoff_ExhaustedWrapsLastError(t *testing.T) {
	last := &HTTPError{StatusCode: 503, Message: "unavailable"}
	err := WithBackoff(context.Background(), fastConfig(), func() error { return last })

	var httpErr *HTTPError
	assert.ErrorAs(t, err, &httpErr)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
}

func TestWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialDelay = time.Second

	attempts := 0
	err := WithBackoff(ctx, cfg, func() error {
		attempts++
		cancel()
		return syscall.ECONNREFUSED
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), false},
		{"net timeout", timeoutErr{}, true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"500", &HTTPError{StatusCode: 500}, true},
		{"408", &HTTPError{StatusCode: 408}, true},
		{"429", &HTTPError{StatusCode: 429}, false},
		{"400", &HTTPError{StatusCode: 400}, false},
		{"plain", errors.New("parse error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestJitter(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, jitter(base, 0))
	for range 20 {
		got := jitter(base, 0.5)
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, base+50*time.Millisecond)
	}
	assert.LessOrEqual(t, jitter(base, 5), 2*base, "fraction is capped at 1")
}

func TestConfig_Delay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, cfg.Delay(1))
	assert.Equal(t, 2*time.Second, cfg.Delay(2))
	assert.Equal(t, 8*time.Second, cfg.Delay(4))
	assert.Equal(t, 10*time.Second, cfg.Delay(5))
	assert.Equal(t, 10*time.Second, cfg.Delay(50))
}

func TestWithBackoff_SingleAttemptKeepsError(t *testing.T) {
	last := &HTTPError{StatusCode: 503}
	err := WithBackoff(context.Background(), Config{MaxAttempts: 0}, func() error { return last })
	assert.Same(t, last, err)
}

func TestWithBackoff_HonoursRetryAfterUpToMax(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 2
	cfg.MaxDelay = 30 * time.Millisecond

	start := time.Now()
	attempts := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		if attempts == 1 {
			return &HTTPError{StatusCode: 503, RetryAfter: time.Hour}
		}
		return nil
	})

	assert.NoError(t, err)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"missing", "", 0},
		{"seconds", "120", 2 * time.Minute},
		{"zero seconds", "0", 0},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			assert.Equal(t, tt.want, ParseRetryAfter(h, now))
		})
	}
}
