// Package config provides fail-open environment loaders and validators.
// A value that is missing falls back to its default silently; a value that
// is present but invalid falls back with a warning, which Apply logs and
// records in ConfigMetrics. Loading never fails.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of loading one configuration value.
type Result[T any] struct {
	Value           T
	Warnings        []string
	FallbackApplied bool
}

func load[T any](envKey string, defaultValue T, parse func(string) (T, error), validator func(T) error) Result[T] {
	raw := os.Getenv(envKey)
	if raw == "" {
		return Result[T]{Value: defaultValue}
	}

	fallback := func(reason error) Result[T] {
		return Result[T]{
			Value: defaultValue,
			Warnings: []string{fmt.Sprintf("Invalid %s='%s': %v, falling back to default '%v'",
				envKey, raw, reason, defaultValue)},
			FallbackApplied: true,
		}
	}

	value, err := parse(raw)
	if err != nil {
		return fallback(err)
	}
	if validator != nil {
		if err := validator(value); err != nil {
			return fallback(err)
		}
	}
	return Result[T]{Value: value}
}

// LoadEnvString returns the variable, or defaultValue when it is unset or empty.
func LoadEnvString(envKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return defaultValue
}

// LoadEnvWithFallback loads a string and validates it.
//
//	result := LoadEnvWithFallback("MATCH_SCHEDULE", "@every 2h", ValidateCronSchedule)
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) Result[string] {
	return load(envKey, defaultValue, func(s string) (string, error) { return s, nil }, validator)
}

// LoadEnvDuration loads a duration such as "20m" or "1h30m".
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) Result[time.Duration] {
	return load(envKey, defaultValue, time.ParseDuration, validator)
}

// LoadEnvInt loads a base-10 integer. Surrounding whitespace is ignored.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) Result[int] {
	return load(envKey, defaultValue, func(s string) (int, error) {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("invalid integer format")
		}
		return n, nil
	}, validator)
}

// LoadEnvBool loads a boolean in any form strconv.ParseBool accepts.
func LoadEnvBool(envKey string, defaultValue bool) Result[bool] {
	return load(envKey, defaultValue, func(s string) (bool, error) {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, fmt.Errorf("invalid boolean format, expected 'true' or 'false'")
		}
		return b, nil
	}, nil)
}

// Apply returns the loaded value. When a fallback was applied it logs every
// warning and records the fallback for field in m. m and logger may be nil.
func Apply[T any](r Result[T], field string, m *ConfigMetrics, logger *slog.Logger) T {
	if !r.FallbackApplied {
		return r.Value
	}
	if m != nil {
		m.RecordValidationError(field)
		m.RecordFallback(field, "default")
	}
	if logger != nil {
		for _, warning := range r.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}
	return r.Value
}
