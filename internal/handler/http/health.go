// Package http holds the API's shared middleware and probe handlers. Route
// handlers live in subpackages such as story.
package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"storyline/internal/handler/http/respond"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus is the result of one health check.
type CheckStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves GET /health: 200 when every check passes, 503
// otherwise.
type HealthHandler struct {
	DB      Pinger
	Version string
	// Stats reports pool statistics when DB is a *sql.DB. Optional.
	Stats func() sql.DBStats
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]CheckStatus{"database": h.checkDatabase(ctx)}
	status, code := "healthy", http.StatusOK
	for _, c := range checks {
		if c.Status != "healthy" {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}

	respond.JSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) CheckStatus {
	if h.DB == nil {
		return CheckStatus{Status: "unhealthy", Message: "database not configured"}
	}
	start := time.Now()
	if err := h.DB.PingContext(ctx); err != nil {
		return CheckStatus{Status: "unhealthy", Message: respond.SanitizeError(err)}
	}
	check := CheckStatus{
		Status:  "healthy",
		Details: map[string]any{"latency_ms": time.Since(start).Milliseconds()},
	}
	if h.Stats != nil {
		stats := h.Stats()
		check.Details["open_connections"] = stats.OpenConnections
		check.Details["in_use"] = stats.InUse
		check.Details["idle"] = stats.Idle
	}
	return check
}

// ReadyHandler serves GET /ready: 200 once the database answers.
type ReadyHandler struct{ DB Pinger }

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.DB == nil || h.DB.PingContext(ctx) != nil {
		respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// LiveHandler serves GET /live and always answers 200.
type LiveHandler struct{}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
