// Package respond writes JSON responses and turns errors into client-safe
// messages. Anything that may carry internals is logged, masked, and replaced
// by "internal server error".
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes v with the given status. A nil v writes headers only.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; logging is all that is left.
		slog.Default().Error("failed to encode JSON response",
			slog.Int("status_code", code),
			slog.Any("error", err))
	}
}

// Error writes err's message verbatim. Use it only for messages built by the
// handler itself.
func Error(w http.ResponseWriter, code int, err error) {
	JSON(w, code, ErrorBody{Error: err.Error()})
}

// safePhrases mark messages that describe the request rather than the server.
var safePhrases = []string{
	"required",
	"invalid",
	"not found",
	"already tracked",
	"limit reached",
	"must be",
	"must not",
	"cannot be",
}

// SafeError writes err's message when it is a client error made of known
// phrases. Everything else, and every 5xx, is logged and replaced by a
// generic message.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	if code < http.StatusInternalServerError && isSafe(msg) {
		JSON(w, code, ErrorBody{Error: msg})
		return
	}
	slog.Default().Error("internal server error",
		slog.String("status", http.StatusText(code)),
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	JSON(w, code, ErrorBody{Error: "internal server error"})
}

func isSafe(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range safePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// AppError pairs a user-facing message and status with the internal cause.
type AppError struct {
	UserMsg string
	Err     error
	Code    int
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.UserMsg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates an AppError.
func NewAppError(code int, userMsg string, err error) *AppError {
	return &AppError{Code: code, UserMsg: userMsg, Err: err}
}

// Fail writes an AppError with its own status and message, logging the
// cause. Other errors go through SafeError with code.
func Fail(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		SafeError(w, code, err)
		return
	}
	if appErr.Err != nil && appErr.Code >= http.StatusInternalServerError {
		slog.Default().Error("application error",
			slog.Int("code", appErr.Code),
			slog.String("user_message", appErr.UserMsg),
			slog.String("error", SanitizeError(appErr.Err)))
	}
	JSON(w, appErr.Code, ErrorBody{Error: appErr.UserMsg})
}
