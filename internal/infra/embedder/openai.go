// Package embedder implements embed.Provider on top of the OpenAI embeddings
// API. Every call passes a client-side rate limiter, a circuit breaker and
// retry with backoff; 429 responses and rate-limit headers are reported to
// the quota gate.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"storyline/internal/config"
	"storyline/internal/resilience/circuitbreaker"
	"storyline/internal/resilience/retry"
	"storyline/internal/usecase/embed"
)

const remainingRequestsHeader = "x-ratelimit-remaining-requests"

// QuotaRecorder receives what the API reveals about the remaining budget.
type QuotaRecorder interface {
	RecordRateLimited(until time.Time)
	RecordRemaining(n int)
}

// OpenAI implements embed.Provider using the OpenAI embeddings endpoint.
type OpenAI struct {
	client         *openai.Client
	httpClient     *http.Client
	model          string
	dimensions     int
	timeout        time.Duration
	backoff        time.Duration
	limiter        *rate.Limiter
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	quota          QuotaRecorder
	now            func() time.Time
}

// Option configures an OpenAI embedder.
type Option func(*OpenAI)

// WithRetryConfig replaces the default embedding retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(o *OpenAI) { o.retryConfig = cfg }
}

// WithClock sets the clock used to compute rate-limit deadlines.
func WithClock(now func() time.Time) Option {
	return func(o *OpenAI) { o.now = now }
}

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *OpenAI) { o.httpClient = client }
}

// NewOpenAI creates an embedder from cfg. quota may be nil.
func NewOpenAI(cfg config.EmbeddingConfig, quota QuotaRecorder, opts ...Option) *OpenAI {
	cbConfig := circuitbreaker.EmbeddingAPIConfig()
	cbConfig.MaxRequests = cfg.CircuitBreaker.MaxRequests
	cbConfig.Interval = cfg.CircuitBreaker.Interval
	cbConfig.Timeout = cfg.CircuitBreaker.Timeout
	cbConfig.FailureThreshold = cfg.CircuitBreaker.FailureThreshold
	cbConfig.MinRequests = cfg.CircuitBreaker.MinRequests

	o := &OpenAI{
		model:          cfg.Model,
		dimensions:     cfg.Dimensions,
		timeout:        cfg.Timeout,
		backoff:        cfg.RateLimitBackoff,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		circuitBreaker: circuitbreaker.New(cbConfig),
		retryConfig:    retry.EmbeddingAPIConfig(),
		quota:          quota,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if o.httpClient != nil {
		clientConfig.HTTPClient = o.httpClient
	}
	o.client = openai.NewClientWithConfig(clientConfig)

	slog.Info("initialized OpenAI embedder",
		slog.String("model", o.model),
		slog.Int("dimensions", o.dimensions),
		slog.Float64("rate_per_second", cfg.RatePerSecond))
	return o
}

// Model returns the embedding model identifier stored with each vector.
func (o *OpenAI) Model() string {
	return o.model
}

// Embed returns one vector per text. It fails with embed.ErrEmbeddingUnavailable
// when the API rate limits the call or the circuit breaker is open.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limiter: %w", err)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var vectors [][]float32
	retryErr := retry.WithBackoff(ctx, o.retryConfig, func() error {
		result, err := circuitbreaker.Do(o.circuitBreaker, func() ([][]float32, error) {
			return o.doEmbed(ctx, texts)
		})
		if err != nil {
			return err
		}
		vectors = result
		return nil
	})
	if retryErr == nil {
		return vectors, nil
	}

	if circuitbreaker.IsRejected(retryErr) {
		slog.Warn("embedding api circuit breaker open, request rejected",
			slog.String("service", o.circuitBreaker.Name()),
			slog.String("state", o.circuitBreaker.State().String()))
		return nil, fmt.Errorf("%w: circuit breaker open", embed.ErrEmbeddingUnavailable)
	}

	var httpErr *retry.HTTPError
	if errors.As(retryErr, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		until := o.now().Add(o.backoff)
		if o.quota != nil {
			o.quota.RecordRateLimited(until)
		}
		slog.Warn("embedding api rate limited",
			slog.Time("until", until),
			slog.String("message", httpErr.Message))
		return nil, fmt.Errorf("%w: rate limited until %s", embed.ErrEmbeddingUnavailable, until.Format(time.RFC3339))
	}

	return nil, fmt.Errorf("openai embeddings failed: %w", retryErr)
}

// doEmbed performs the actual API call without retry or circuit breaker.
func (o *OpenAI) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, toHTTPError(err)
	}
	o.recordRemaining(resp.Header())

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("openai returned unexpected embedding index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (o *OpenAI) recordRemaining(h http.Header) {
	if o.quota == nil || h == nil {
		return
	}
	raw := h.Get(remainingRequestsHeader)
	if raw == "" {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Debug("ignoring malformed rate-limit header",
			slog.String("header", remainingRequestsHeader),
			slog.String("value", raw))
		return
	}
	o.quota.RecordRemaining(n)
}

// toHTTPError maps go-openai status errors to retry.HTTPError so that the
// retry policy and the 429 handling see a status code.
func toHTTPError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &retry.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &retry.HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return err
}
