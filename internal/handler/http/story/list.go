package story

import (
	"net/http"

	"storyline/internal/handler/http/respond"
)

// ListHandler serves GET /stories: every tracked story with its unread count
// and the perspectives among its articles.
type ListHandler struct{ Svc Service }

func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stories, err := h.Svc.ListTracked(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]DTO, 0, len(stories))
	for _, s := range stories {
		out = append(out, toDTO(s))
	}
	respond.JSON(w, http.StatusOK, out)
}
