package story

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"storyline/internal/handler/http/respond"
	"storyline/internal/observability/logging"
	"storyline/internal/usecase/orchestrator"
)

// RunHandler serves POST /matching/run: run one matching pass and return
// its outcomes. An interrupted pass still answers 200 with Interrupted set.
type RunHandler struct {
	Runner  PassRunner
	Timeout time.Duration
}

func (h RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	result, err := h.Runner.RunMatchingPass(ctx)
	if err != nil {
		if errors.Is(err, orchestrator.ErrPassFailed) {
			respond.Fail(w, http.StatusInternalServerError,
				respond.NewAppError(http.StatusServiceUnavailable, "matching pass failed, retry later", err))
			return
		}
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	logging.FromContext(r.Context()).Info("matching pass requested over HTTP",
		slog.String("run_id", result.RunID),
		slog.Int("attached", result.Attached),
		slog.Bool("interrupted", result.Interrupted))
	respond.JSON(w, http.StatusOK, result)
}
