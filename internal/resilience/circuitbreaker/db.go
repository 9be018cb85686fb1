package circuitbreaker

import (
	"context"
	"time"
)

// DBConfig opens only when every ping of a sample of five failed.
func DBConfig() Config {
	return Config{
		Name:             "database",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 1.0,
		MinRequests:      5,
	}
}

// Pinger is the part of *sql.DB the breaker guards.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DBCircuitBreaker is a Pinger whose pings pass through a breaker, so a
// worker precondition checked on every trigger stops hammering a database
// that is down.
type DBCircuitBreaker struct {
	cb *CircuitBreaker
	db Pinger
}

// NewDBCircuitBreaker guards db with DBConfig.
func NewDBCircuitBreaker(db Pinger) *DBCircuitBreaker {
	return NewDBCircuitBreakerWithConfig(db, DBConfig())
}

func NewDBCircuitBreakerWithConfig(db Pinger, cfg Config) *DBCircuitBreaker {
	return &DBCircuitBreaker{cb: New(cfg), db: db}
}

// PingContext fails fast with gobreaker.ErrOpenState while the breaker is open.
func (d *DBCircuitBreaker) PingContext(ctx context.Context) error {
	_, err := Do(d.cb, func() (struct{}, error) {
		return struct{}{}, d.db.PingContext(ctx)
	})
	return err
}

func (d *DBCircuitBreaker) IsOpen() bool {
	return d.cb.IsOpen()
}
