package story

import (
	"net/http"

	"storyline/internal/handler/http/pathutil"
	"storyline/internal/handler/http/respond"
)

// MembersHandler serves GET /stories/{id}/articles, oldest first.
type MembersHandler struct{ Svc Service }

func (h MembersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := pathutil.PathID(r, "id")
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	members, err := h.Svc.Members(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ArticleDTO, 0, len(members))
	for _, m := range members {
		if m.Article != nil {
			out = append(out, toArticleDTO(m))
		}
	}
	respond.JSON(w, http.StatusOK, out)
}
