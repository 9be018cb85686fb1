package story

import (
	"errors"
	"net/http"

	"storyline/internal/domain/entity"
	"storyline/internal/handler/http/respond"
	storyUC "storyline/internal/usecase/story"
)

// writeError maps use case errors to statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storyUC.ErrLimitReached), errors.Is(err, storyUC.ErrArticleTracked):
		respond.Error(w, http.StatusConflict, rootCause(err))
	case errors.Is(err, storyUC.ErrStoryNotFound), errors.Is(err, storyUC.ErrArticleNotFound):
		respond.Error(w, http.StatusNotFound, rootCause(err))
	case errors.Is(err, entity.ErrValidationFailed):
		respond.SafeError(w, http.StatusBadRequest, err)
	default:
		respond.SafeError(w, http.StatusInternalServerError, err)
	}
}

// rootCause returns the sentinel among err's chain so that wrapping context
// stays out of responses.
func rootCause(err error) error {
	for _, sentinel := range []error{
		storyUC.ErrLimitReached,
		storyUC.ErrArticleTracked,
		storyUC.ErrStoryNotFound,
		storyUC.ErrArticleNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}
