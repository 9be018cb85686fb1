// Package pathutil parses path parameters and normalizes request paths for
// metric labels.
package pathutil

import (
	"errors"
	"net/http"
	"strconv"
)

// ErrInvalidID is returned when a path ID is not a positive integer.
var ErrInvalidID = errors.New("invalid id")

// ParseID parses a positive int64 ID.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

// PathID parses the named wildcard of a ServeMux pattern such as
// "GET /stories/{id}/articles".
func PathID(r *http.Request, name string) (int64, error) {
	return ParseID(r.PathValue(name))
}
