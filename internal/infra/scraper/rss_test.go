package scraper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline/internal/infra/scraper"
	"storyline/internal/resilience/circuitbreaker"
	"storyline/internal/resilience/retry"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func newFetcher() *scraper.RSSFetcher {
	return scraper.NewRSSFetcher(&http.Client{Timeout: 10 * time.Second},
		scraper.WithRetryConfig(fastRetry()),
		scraper.WithCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
			Name:             "feed-fetch-test",
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 1,
			MinRequests:      100,
		})))
}

func serveFeed(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRSSFetcher_Fetch_Success(t *testing.T) {
	server := serveFeed(t, "application/rss+xml", `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>Test Description</description>
    <item>
      <title>Article 1</title>
      <link>https://example.com/article1</link>
      <description>Description 1</description>
      <pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate>
    </item>
    <item>
      <title>  Article 2 </title>
      <link>https://example.com/article2</link>
      <description>Description 2</description>
      <pubDate>Tue, 02 Jan 2024 09:30:00 +0900</pubDate>
    </item>
  </channel>
</rss>`)

	items, err := newFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Article 1", items[0].Title)
	assert.Equal(t, "https://example.com/article1", items[0].URL)
	assert.Equal(t, "Description 1", items[0].Content)
	assert.True(t, items[0].PublishedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, "Article 2", items[1].Title)
	assert.Equal(t, time.UTC, items[1].PublishedAt.Location())
	assert.True(t, items[1].PublishedAt.Equal(time.Date(2024, 1, 2, 0, 30, 0, 0, time.UTC)))
}

func TestRSSFetcher_Fetch_Atom(t *testing.T) {
	server := serveFeed(t, "application/atom+xml", `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Test Atom Feed</title>
  <link href="https://example.com"/>
  <updated>2024-01-01T00:00:00Z</updated>
  <entry>
    <title>Atom Article 1</title>
    <link href="https://example.com/atom1"/>
    <id>atom1</id>
    <updated>2024-01-03T00:00:00Z</updated>
    <summary>Atom Summary 1</summary>
  </entry>
</feed>`)

	items, err := newFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Atom Article 1", items[0].Title)
	// No <published>: the update time stands in.
	assert.True(t, items[0].PublishedAt.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))
}

func TestRSSFetcher_Fetch_EmptyFeed(t *testing.T) {
	server := serveFeed(t, "application/rss+xml", `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Empty Feed</title>
    <link>https://example.com</link>
  </channel>
</rss>`)

	items, err := newFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRSSFetcher_Fetch_MissingDate(t *testing.T) {
	server := serveFeed(t, "application/rss+xml", `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Undated</title>
    <item>
      <title>No date</title>
      <link>https://example.com/undated</link>
    </item>
  </channel>
</rss>`)

	items, err := newFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].PublishedAt.IsZero())
}

func TestRSSFetcher_Fetch_InvalidXML(t *testing.T) {
	server := serveFeed(t, "application/rss+xml", "Invalid XML <><><>")

	_, err := newFetcher().Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestRSSFetcher_Fetch_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newFetcher().Fetch(ctx, server.URL)
	assert.Error(t, err)
}

func TestRSSFetcher_Fetch_WithContent(t *testing.T) {
	server := serveFeed(t, "application/rss+xml", `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>Article with Content</title>
      <link>https://example.com/article</link>
      <description>Short description</description>
      <content:encoded><![CDATA[<p>Full <b>content</b> here</p><script>track()</script>]]></content:encoded>
    </item>
  </channel>
</rss>`)

	items, err := newFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Full content here", items[0].Content)
}

func TestRSSFetcher_Fetch_StatusErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantAttempts int32
	}{
		{"rate limited is not retried", http.StatusTooManyRequests, 1},
		{"not found is not retried", http.StatusNotFound, 1},
		{"server error is retried", http.StatusBadGateway, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newFetcher().Fetch(context.Background(), server.URL)
			var httpErr *retry.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.wantAttempts, attempts.Load())
		})
	}
}

func TestRSSFetcher_Fetch_RetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newFetcher().Fetch(context.Background(), server.URL)
	var httpErr *retry.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 2*time.Minute, httpErr.RetryAfter)
	assert.Equal(t, "429 Too Many Requests", httpErr.Message)
}

func TestRSSFetcher_Fetch_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(`<rss version="2.0"><channel><title>`))
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
		_, _ = w.Write([]byte(`</title></channel></rss>`))
	}))
	defer server.Close()

	f := scraper.NewRSSFetcher(server.Client(), scraper.WithRetryConfig(fastRetry()), scraper.WithMaxBodyBytes(1024))
	_, err := f.Fetch(context.Background(), server.URL)
	assert.ErrorIs(t, err, scraper.ErrFeedTooLarge)
}

func TestRSSFetcher_SendsUserAgent(t *testing.T) {
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.UserAgent())
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(`<rss version="2.0"><channel><title>t</title></channel></rss>`))
	}))
	defer server.Close()

	_, err := newFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "StorylineBot/1.0", got.Load())
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  already   plain\ntext ", "already plain text"},
		{"markup", "<div><p>Hello</p> <p>world</p></div>", "Hello world"},
		{"entities", "Fish &amp; chips", "Fish & chips"},
		{"style removed", "<style>p{}</style><p>kept</p>", "kept"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scraper.PlainText(tt.in))
		})
	}
}
