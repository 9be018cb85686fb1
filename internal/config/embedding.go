// Package config loads the application-level configuration of storyline:
// the embedding provider settings from the environment and the feed source
// list from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultEmbeddingModel is the OpenAI model used when EMBEDDING_MODEL is unset.
const DefaultEmbeddingModel = "text-embedding-3-small"

// EmbeddingConfig holds configuration for the embedding provider.
type EmbeddingConfig struct {
	// Enabled controls whether articles are embedded at all.
	// When false the backfill is skipped and no API key is required.
	// Default: true
	Enabled bool

	// APIKey authenticates against the OpenAI API. Required when Enabled.
	APIKey string

	// BaseURL overrides the API endpoint (OpenAI-compatible servers).
	// Empty means the public OpenAI endpoint.
	BaseURL string

	// Model is the embedding model identifier.
	// Default: text-embedding-3-small
	Model string

	// Dimensions requests shortened vectors. 0 keeps the model default.
	Dimensions int

	// BatchSize is the number of articles embedded per request.
	// Default: 32, range 1-2048
	BatchSize int

	// BackfillLimit caps how many articles one backfill run embeds.
	// Default: 500
	BackfillLimit int

	// RatePerSecond caps request throughput on the client side.
	// Default: 2
	RatePerSecond float64

	// Timeout bounds a single embedding request.
	// Default: 30s
	Timeout time.Duration

	// RateLimitBackoff is how long a 429 closes the quota gate.
	// Default: 1m
	RateLimitBackoff time.Duration

	// CircuitBreaker for embedding API calls.
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig for embedding API resilience.
type CircuitBreakerConfig struct {
	// MaxRequests in half-open state.
	MaxRequests uint32

	// Interval for clearing failure counts.
	Interval time.Duration

	// Timeout before transitioning from open to half-open.
	Timeout time.Duration

	// FailureThreshold ratio to trip circuit (0.0 to 1.0).
	FailureThreshold float64

	// MinRequests before calculating failure ratio.
	MinRequests uint32
}

// LoadEmbeddingConfig loads embedding configuration from environment variables.
// Returns a config with defaults if environment variables are not set.
func LoadEmbeddingConfig() (*EmbeddingConfig, error) {
	config := &EmbeddingConfig{
		Enabled:          getEnvBool("EMBEDDING_ENABLED", true),
		APIKey:           os.Getenv("OPENAI_API_KEY"),
		BaseURL:          os.Getenv("OPENAI_BASE_URL"),
		Model:            getEnvOrDefault("EMBEDDING_MODEL", DefaultEmbeddingModel),
		Dimensions:       getEnvInt("EMBEDDING_DIMENSIONS", 0),
		BatchSize:        getEnvInt("EMBEDDING_BATCH_SIZE", 32),
		BackfillLimit:    getEnvInt("EMBEDDING_BACKFILL_LIMIT", 500),
		RatePerSecond:    getEnvFloat("EMBEDDING_RATE_PER_SECOND", 2),
		Timeout:          getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		RateLimitBackoff: getEnvDuration("EMBEDDING_RATE_LIMIT_BACKOFF", time.Minute),
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      uint32(getEnvInt("EMBEDDING_CB_MAX_REQUESTS", 3)),
			Interval:         getEnvDuration("EMBEDDING_CB_INTERVAL", 30*time.Second),
			Timeout:          getEnvDuration("EMBEDDING_CB_TIMEOUT", 60*time.Second),
			FailureThreshold: 0.6,
			MinRequests:      5,
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding configuration: %w", err)
	}

	return config, nil
}

// Validate checks configuration correctness. A disabled configuration is
// always valid.
func (c *EmbeddingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_ENABLED is true")
	}

	if c.Model == "" {
		return fmt.Errorf("EMBEDDING_MODEL cannot be empty")
	}

	if c.Dimensions < 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must not be negative")
	}

	if c.BatchSize <= 0 || c.BatchSize > 2048 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be between 1 and 2048")
	}

	if c.BackfillLimit <= 0 {
		return fmt.Errorf("EMBEDDING_BACKFILL_LIMIT must be positive")
	}

	if c.RatePerSecond <= 0 {
		return fmt.Errorf("EMBEDDING_RATE_PER_SECOND must be positive")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("EMBEDDING_TIMEOUT must be positive")
	}

	if c.RateLimitBackoff <= 0 {
		return fmt.Errorf("EMBEDDING_RATE_LIMIT_BACKOFF must be positive")
	}

	if c.CircuitBreaker.MaxRequests == 0 {
		return fmt.Errorf("EMBEDDING_CB_MAX_REQUESTS must be positive")
	}

	if c.CircuitBreaker.Interval <= 0 {
		return fmt.Errorf("EMBEDDING_CB_INTERVAL must be positive")
	}

	if c.CircuitBreaker.Timeout <= 0 {
		return fmt.Errorf("EMBEDDING_CB_TIMEOUT must be positive")
	}

	return nil
}

// getEnvOrDefault returns environment variable value or default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool parses boolean environment variable with default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt parses integer environment variable with default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloat parses float environment variable with default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration parses duration environment variable with default.
// Supports formats like "30s", "1m", "2h".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
