// Package ingest pulls articles from the configured feed sources into the
// article cache. A batch is canonicalized, checked against stored URLs and
// collapsed with the headline clusterer before anything is written, so
// syndicated copies never become separate candidates.
package ingest

import "errors"

var (
	// ErrInvalidURL is returned by CanonicalURL for relative, empty or
	// non-HTTP URLs.
	ErrInvalidURL = errors.New("invalid article url")

	// ErrRateLimited marks a fetch rejected by the upstream with 429.
	ErrRateLimited = errors.New("source rate limited")
)
