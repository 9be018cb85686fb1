// Package worker drives the background side of storyline: periodic feed
// syncs and matching passes, a manual refresh trigger, health endpoints and
// run metrics.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storyline/internal/pkg/config"
)

// WorkerConfig controls the worker's schedules and limits.
//
// Environment variables:
//   - MATCH_SCHEDULE: cron expression or descriptor (default "@every 2h")
//   - SYNC_SCHEDULE: cron expression or descriptor (default "*/30 * * * *")
//   - WORKER_TIMEZONE: IANA name the schedules are evaluated in (default "UTC")
//   - MATCH_TIMEOUT: 1m-4h (default 20m)
//   - SYNC_TIMEOUT: positive duration (default 10m)
//   - MATCH_PARALLELISM: 1-32 stories matched at once (default 4)
//   - WORKER_HEALTH_PORT: 1024-65535 (default 9091)
//   - REQUIRE_DB_PING: ping the database before every run (default true)
type WorkerConfig struct {
	MatchSchedule    string
	SyncSchedule     string
	Timezone         string
	MatchTimeout     time.Duration
	SyncTimeout      time.Duration
	MatchParallelism int
	HealthPort       int
	RequireDBPing    bool
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		MatchSchedule:    "@every 2h",
		SyncSchedule:     "*/30 * * * *",
		Timezone:         "UTC",
		MatchTimeout:     20 * time.Minute,
		SyncTimeout:      10 * time.Minute,
		MatchParallelism: 4,
		HealthPort:       9091,
		RequireDBPing:    true,
	}
}

func validateMatchTimeout(d time.Duration) error {
	return config.ValidateDuration(d, time.Minute, 4*time.Hour)
}

func validateParallelism(v int) error {
	return config.ValidateIntRange(v, 1, 32)
}

func validateHealthPort(v int) error {
	return config.ValidateIntRange(v, 1024, 65535)
}

// Validate reports every invalid field at once.
func (c *WorkerConfig) Validate() error {
	var errs []error
	if err := config.ValidateCronSchedule(c.MatchSchedule); err != nil {
		errs = append(errs, fmt.Errorf("match schedule: %w", err))
	}
	if err := config.ValidateCronSchedule(c.SyncSchedule); err != nil {
		errs = append(errs, fmt.Errorf("sync schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := validateMatchTimeout(c.MatchTimeout); err != nil {
		errs = append(errs, fmt.Errorf("match timeout: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.SyncTimeout); err != nil {
		errs = append(errs, fmt.Errorf("sync timeout: %w", err))
	}
	if err := validateParallelism(c.MatchParallelism); err != nil {
		errs = append(errs, fmt.Errorf("match parallelism: %w", err))
	}
	if err := validateHealthPort(c.HealthPort); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the time zone the schedules run in.
func (c *WorkerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LoadConfigFromEnv loads the worker configuration. Invalid values fall back
// to their defaults with a warning and a metric, so the returned config is
// always usable and the error is always nil. metrics may be nil.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()

	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.ConfigMetrics
	}
	fallback := false
	track := func(applied bool) {
		fallback = fallback || applied
	}

	matchSchedule := config.LoadEnvWithFallback("MATCH_SCHEDULE", cfg.MatchSchedule, config.ValidateCronSchedule)
	track(matchSchedule.FallbackApplied)
	cfg.MatchSchedule = config.Apply(matchSchedule, "match_schedule", cm, logger)

	syncSchedule := config.LoadEnvWithFallback("SYNC_SCHEDULE", cfg.SyncSchedule, config.ValidateCronSchedule)
	track(syncSchedule.FallbackApplied)
	cfg.SyncSchedule = config.Apply(syncSchedule, "sync_schedule", cm, logger)

	timezone := config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	track(timezone.FallbackApplied)
	cfg.Timezone = config.Apply(timezone, "timezone", cm, logger)

	matchTimeout := config.LoadEnvDuration("MATCH_TIMEOUT", cfg.MatchTimeout, validateMatchTimeout)
	track(matchTimeout.FallbackApplied)
	cfg.MatchTimeout = config.Apply(matchTimeout, "match_timeout", cm, logger)

	syncTimeout := config.LoadEnvDuration("SYNC_TIMEOUT", cfg.SyncTimeout, config.ValidatePositiveDuration)
	track(syncTimeout.FallbackApplied)
	cfg.SyncTimeout = config.Apply(syncTimeout, "sync_timeout", cm, logger)

	parallelism := config.LoadEnvInt("MATCH_PARALLELISM", cfg.MatchParallelism, validateParallelism)
	track(parallelism.FallbackApplied)
	cfg.MatchParallelism = config.Apply(parallelism, "match_parallelism", cm, logger)

	port := config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, validateHealthPort)
	track(port.FallbackApplied)
	cfg.HealthPort = config.Apply(port, "health_port", cm, logger)

	ping := config.LoadEnvBool("REQUIRE_DB_PING", cfg.RequireDBPing)
	track(ping.FallbackApplied)
	cfg.RequireDBPing = config.Apply(ping, "require_db_ping", cm, logger)

	if cm != nil {
		cm.SetFallbackActive(fallback)
		cm.RecordLoadTimestamp()
	}
	return &cfg, nil
}
