package story

import (
	"encoding/json"
	"errors"
	"net/http"

	"storyline/internal/handler/http/respond"
)

type followRequest struct {
	ArticleID int64 `json:"article_id"`
}

// FollowHandler serves POST /stories: start tracking a story seeded with an
// article. 409 when the story limit is reached or the article is already
// tracked.
type FollowHandler struct{ Svc Service }

func (h FollowHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req followRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if req.ArticleID <= 0 {
		respond.Error(w, http.StatusBadRequest, errors.New("article_id is required and must be positive"))
		return
	}

	s, err := h.Svc.Follow(r.Context(), req.ArticleID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, storyDTO(s))
}
