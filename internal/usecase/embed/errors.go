// Package embed backfills embeddings for cached articles that have none.
// The matcher never calls the provider itself; an article without an
// embedding is simply not a candidate until a later backfill covers it.
package embed

import "errors"

// ErrEmbeddingUnavailable means the provider cannot be used right now
// (quota exhausted, rate limited, circuit open). It is a skip condition,
// not a failure.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")
