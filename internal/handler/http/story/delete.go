package story

import (
	"net/http"

	"storyline/internal/handler/http/pathutil"
	"storyline/internal/handler/http/respond"
)

// DeleteHandler serves DELETE /stories/{id}. The story's articles become
// match candidates again.
type DeleteHandler struct{ Svc Service }

func (h DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := pathutil.PathID(r, "id")
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Svc.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
