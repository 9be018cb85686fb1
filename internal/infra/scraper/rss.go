// Package scraper provides the RSS/Atom feed fetcher used by the ingester.
// Requests go through retry and a circuit breaker; bodies are parsed with
// gofeed and item markup is flattened with goquery.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"storyline/internal/resilience/circuitbreaker"
	"storyline/internal/resilience/retry"
	"storyline/internal/usecase/ingest"
)

const (
	userAgent = "StorylineBot/1.0"

	// DefaultMaxBodyBytes caps how much of a feed response is read.
	DefaultMaxBodyBytes int64 = 8 << 20
)

// ErrFeedTooLarge is returned when a feed body exceeds the configured cap.
var ErrFeedTooLarge = errors.New("feed body too large")

// RSSFetcher implements ingest.FeedFetcher using the gofeed library.
// It includes circuit breaker and retry logic for improved reliability.
type RSSFetcher struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	maxBodyBytes   int64
}

// Option configures an RSSFetcher.
type Option func(*RSSFetcher)

// WithRetryConfig replaces the default feed retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(f *RSSFetcher) { f.retryConfig = cfg }
}

// WithCircuitBreaker replaces the default feed circuit breaker.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(f *RSSFetcher) { f.circuitBreaker = cb }
}

// WithMaxBodyBytes caps the size of a feed response.
func WithMaxBodyBytes(n int64) Option {
	return func(f *RSSFetcher) {
		if n > 0 {
			f.maxBodyBytes = n
		}
	}
}

// NewRSSFetcher creates a new RSSFetcher with the given HTTP client.
// It automatically configures circuit breaker and retry logic.
func NewRSSFetcher(client *http.Client, opts ...Option) *RSSFetcher {
	f := &RSSFetcher{
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryConfig:    retry.FeedFetchConfig(),
		maxBodyBytes:   DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves and parses an RSS/Atom feed from the given URL.
// Non-2xx responses surface as *retry.HTTPError carrying any Retry-After
// hint, so callers can tell a 429 apart from other failures.
func (f *RSSFetcher) Fetch(ctx context.Context, feedURL string) ([]ingest.FeedItem, error) {
	var items []ingest.FeedItem

	retryErr := retry.WithBackoff(ctx, f.retryConfig, func() error {
		result, err := circuitbreaker.Do(f.circuitBreaker, func() ([]ingest.FeedItem, error) {
			return f.doFetch(ctx, feedURL)
		})
		if err != nil {
			if circuitbreaker.IsRejected(err) {
				slog.Warn("feed fetch circuit breaker open, request rejected",
					slog.String("service", f.circuitBreaker.Name()),
					slog.String("url", feedURL),
					slog.String("state", f.circuitBreaker.State().String()))
			}
			return err
		}
		items = result
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return items, nil
}

func (f *RSSFetcher) doFetch(ctx context.Context, feedURL string) ([]ingest.FeedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
			RetryAfter: retry.ParseRetryAfter(resp.Header, time.Now()),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFeedTooLarge, f.maxBodyBytes)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]ingest.FeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		// Left zero when the feed carries no date at all.
		published := it.PublishedParsed
		if published == nil {
			published = it.UpdatedParsed
		}

		content := it.Content
		if content == "" {
			content = it.Description
		}

		item := ingest.FeedItem{
			Title:   strings.TrimSpace(it.Title),
			URL:     strings.TrimSpace(it.Link),
			Content: PlainText(content),
		}
		if published != nil {
			item.PublishedAt = published.UTC()
		}
		items = append(items, item)
	}

	return items, nil
}

// PlainText strips markup from a feed body and collapses whitespace.
// Input that does not parse as HTML is returned trimmed.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
