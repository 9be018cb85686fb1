package story

import (
	"net/http"

	"storyline/internal/handler/http/pathutil"
	"storyline/internal/handler/http/respond"
)

// ViewedHandler serves POST /stories/{id}/viewed and clears unread state.
type ViewedHandler struct{ Svc Service }

func (h ViewedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := pathutil.PathID(r, "id")
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Svc.MarkViewed(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
