package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HealthServer serves the worker's probe and control endpoints:
//   - GET /health: liveness, always 200
//   - GET /health/ready: 200 once SetReady(true) was called, 503 before
//   - POST /refresh: queue a manual run of every registered task, or of the
//     one named by ?task=
//
// Example usage:
//
//	healthServer := NewHealthServer(":9091", logger)
//	healthServer.RegisterTrigger("match", matchScheduler.Trigger)
//	go func() {
//	    if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
//	        logger.Error("health server failed", slog.Any("error", err))
//	    }
//	}()
//	healthServer.SetReady(true)
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	isReady *atomic.Bool
	server  *http.Server

	mu       sync.RWMutex
	triggers map[string]func() bool
}

type healthResponse struct {
	Status string `json:"status"`
}

// refreshResponse maps each task to "queued" or "coalesced".
type refreshResponse struct {
	Status string            `json:"status"`
	Tasks  map[string]string `json:"tasks"`
}

// NewHealthServer creates a health server listening on addr. It starts not
// ready.
func NewHealthServer(addr string, logger *slog.Logger) *HealthServer {
	return &HealthServer{
		addr:     addr,
		logger:   logger,
		isReady:  &atomic.Bool{},
		triggers: make(map[string]func() bool),
	}
}

// RegisterTrigger exposes trigger under name on POST /refresh. trigger
// reports whether a new run was queued.
func (h *HealthServer) RegisterTrigger(name string, trigger func() bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.triggers[name] = trigger
}

// Handler returns the server's routes.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleLiveness)
	mux.HandleFunc("/health/ready", h.handleReadiness)
	mux.HandleFunc("/refresh", h.handleRefresh)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully within 5
// seconds and returns http.ErrServerClosed.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if err != http.ErrServerClosed {
			h.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

// SetReady sets the readiness reported by /health/ready.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

func (h *HealthServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSON(w, http.StatusMethodNotAllowed, healthResponse{Status: "method not allowed"})
		return
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.triggers))
	if task := r.URL.Query().Get("task"); task != "" {
		if _, ok := h.triggers[task]; ok {
			names = append(names, task)
		}
	} else {
		for name := range h.triggers {
			names = append(names, name)
		}
	}
	h.mu.RUnlock()

	if len(names) == 0 {
		h.writeJSON(w, http.StatusNotFound, healthResponse{Status: "unknown task"})
		return
	}
	sort.Strings(names)

	resp := refreshResponse{Status: "accepted", Tasks: make(map[string]string, len(names))}
	for _, name := range names {
		h.mu.RLock()
		trigger := h.triggers[name]
		h.mu.RUnlock()
		if trigger() {
			resp.Tasks[name] = "queued"
		} else {
			resp.Tasks[name] = "coalesced"
		}
	}
	h.logger.Info("manual refresh requested", slog.Any("tasks", resp.Tasks))
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
