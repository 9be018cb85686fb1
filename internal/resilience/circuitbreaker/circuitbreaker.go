// Package circuitbreaker guards outbound calls (feeds, embeddings) with
// github.com/sony/gobreaker. Breaker state is logged and exported as the
// storyline_circuit_breaker_state gauge.
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"storyline/internal/observability/metrics"
)

// Config tunes a breaker. It trips once MinRequests calls were seen within
// Interval and the failed share reaches FailureThreshold; after Timeout it
// lets MaxRequests probe calls through.
type Config struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// EmbeddingAPIConfig is the breaker in front of the embedding provider.
// While it is open embedding calls become skips.
func EmbeddingAPIConfig() Config {
	return Config{
		Name:             "embedding-api",
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          90 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      4,
	}
}

// FeedFetchConfig is shared by every feed. One dead publisher should not
// trip it, so it needs a larger sample than the embedding breaker.
func FeedFetchConfig() Config {
	return Config{
		Name:             "feed-fetch",
		MaxRequests:      4,
		Interval:         2 * time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.75,
		MinRequests:      12,
	}
}

// CircuitBreaker is a typed facade over gobreaker.CircuitBreaker.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// New builds a breaker from cfg and publishes its initial state.
func New(cfg Config) *CircuitBreaker {
	b := &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(cfg.settings())}
	metrics.SetCircuitState(cfg.Name, stateValue(gobreaker.StateClosed))
	return b
}

func (c Config) settings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        c.Name,
		MaxRequests: c.MaxRequests,
		Interval:    c.Interval,
		Timeout:     c.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < c.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureThreshold
		},
		// A caller giving up is not evidence against the upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			level := slog.LevelInfo
			if to == gobreaker.StateOpen {
				level = slog.LevelWarn
			}
			slog.Log(context.Background(), level, "circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.SetCircuitState(name, stateValue(to))
		},
	}
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Do runs fn unless the breaker rejects it. A rejection is reported by
// IsRejected and fn is not called.
func Do[T any](b *CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

// IsRejected reports whether err came from the breaker itself rather than
// from the guarded call.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Name returns the breaker name used in logs and metrics.
func (b *CircuitBreaker) Name() string { return b.cb.Name() }

// State returns the current breaker state.
func (b *CircuitBreaker) State() gobreaker.State { return b.cb.State() }

// IsOpen reports whether calls are currently rejected outright.
func (b *CircuitBreaker) IsOpen() bool { return b.cb.State() == gobreaker.StateOpen }
