// Command diagnose_feeds fetches every source in the source list once and
// reports which feeds are healthy. It writes nothing to the database.
//
//	go run ./scripts/diagnose_feeds.go [-sources config/sources.yaml] [-json]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"storyline/internal/config"
	"storyline/internal/infra/scraper"
	"storyline/internal/observability/logging"
	"storyline/internal/resilience/retry"
)

// FeedDiagnostic is the result for one source.
type FeedDiagnostic struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Status       string `json:"status"` // OK, EMPTY, HTTP_ERROR, TIMEOUT, TOO_LARGE, PARSE_ERROR
	HTTPCode     int    `json:"http_code,omitempty"`
	ItemCount    int    `json:"item_count"`
	Undated      int    `json:"undated"`
	LatestDate   string `json:"latest_date,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ResponseTime int64  `json:"response_time_ms"`
}

func main() {
	path := flag.String("sources", config.SourcesPath(), "source list YAML")
	asJSON := flag.Bool("json", false, "print JSON instead of a table")
	timeout := flag.Duration("timeout", 20*time.Second, "per-feed timeout")
	flag.Parse()

	logger := logging.NewTextLogger()

	sc, err := config.LoadSourcesConfig(*path)
	if err != nil {
		logger.Error("failed to load sources", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("diagnosing feeds", slog.Int("sources", len(sc.Sources)))

	fetcher := scraper.NewRSSFetcher(&http.Client{Timeout: *timeout},
		scraper.WithRetryConfig(retry.Config{MaxAttempts: 1}))

	results := make([]FeedDiagnostic, len(sc.Sources))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(8)
	for i, src := range sc.Sources {
		g.Go(func() error {
			results[i] = diagnose(ctx, fetcher, src.Name, src.FeedURL, *timeout)
			return nil
		})
	}
	_ = g.Wait()

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			logger.Error("failed to write report", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}
	printTable(results)
}

func diagnose(ctx context.Context, f *scraper.RSSFetcher, name, url string, timeout time.Duration) FeedDiagnostic {
	d := FeedDiagnostic{Name: name, URL: url}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	items, err := f.Fetch(ctx, url)
	d.ResponseTime = time.Since(start).Milliseconds()

	var (
		httpErr *retry.HTTPError
		netErr  net.Error
	)
	switch {
	case errors.As(err, &httpErr):
		d.Status, d.HTTPCode, d.ErrorMessage = "HTTP_ERROR", httpErr.StatusCode, httpErr.Message
		return d
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		d.Status, d.ErrorMessage = "TIMEOUT", err.Error()
		return d
	case errors.Is(err, scraper.ErrFeedTooLarge):
		d.Status, d.ErrorMessage = "TOO_LARGE", err.Error()
		return d
	case err != nil:
		d.Status, d.ErrorMessage = "PARSE_ERROR", err.Error()
		return d
	}

	d.ItemCount = len(items)
	var latest time.Time
	for _, it := range items {
		if it.PublishedAt.IsZero() {
			d.Undated++
			continue
		}
		if it.PublishedAt.After(latest) {
			latest = it.PublishedAt
		}
	}
	if !latest.IsZero() {
		d.LatestDate = latest.Format(time.RFC3339)
	}
	d.Status = "OK"
	if d.ItemCount == 0 {
		d.Status = "EMPTY"
	}
	return d
}

func printTable(results []FeedDiagnostic) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSTATUS\tITEMS\tUNDATED\tLATEST\tMS\tERROR")
	ok := 0
	for _, d := range results {
		if d.Status == "OK" {
			ok++
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%d\t%s\n",
			d.Name, d.Status, d.ItemCount, d.Undated, d.LatestDate, d.ResponseTime, d.ErrorMessage)
	}
	_ = w.Flush()
	fmt.Printf("\n%d/%d feeds healthy\n", ok, len(results))
}
