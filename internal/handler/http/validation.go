package http

import (
	"errors"
	"net/http"

	"storyline/internal/handler/http/respond"
)

// Request limits enforced by InputValidation.
const (
	MaxPathLength  = 2048
	MaxRequestBody = 1 << 20
)

// InputValidation rejects overlong paths and caps request bodies. Handlers
// reading past the cap get an error from the body reader.
func InputValidation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.URL.Path) > MaxPathLength {
				respond.Error(w, http.StatusRequestURITooLong, errors.New("URI too long"))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBody)
			next.ServeHTTP(w, r)
		})
	}
}
