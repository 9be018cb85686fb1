// Package story exposes tracked stories over HTTP.
package story

import (
	"context"
	"net/http"
	"time"

	"storyline/internal/domain/entity"
	"storyline/internal/usecase/orchestrator"
)

// Service is the story use case surface the handlers need.
type Service interface {
	ListTracked(ctx context.Context) ([]entity.StoryWithUnread, error)
	Follow(ctx context.Context, articleID int64) (*entity.Story, error)
	MarkViewed(ctx context.Context, storyID int64) error
	Members(ctx context.Context, storyID int64) ([]entity.StoryMember, error)
	Delete(ctx context.Context, storyID int64) error
}

// PassRunner runs one matching pass.
type PassRunner interface {
	RunMatchingPass(ctx context.Context) (*orchestrator.PassResult, error)
}

// Register adds the story routes to mux:
//
//	GET    /stories
//	POST   /stories
//	POST   /stories/{id}/viewed
//	GET    /stories/{id}/articles
//	DELETE /stories/{id}
//	POST   /matching/run
func Register(mux *http.ServeMux, svc Service, runner PassRunner, runTimeout time.Duration) {
	mux.Handle("GET /stories", ListHandler{Svc: svc})
	mux.Handle("POST /stories", FollowHandler{Svc: svc})
	mux.Handle("POST /stories/{id}/viewed", ViewedHandler{Svc: svc})
	mux.Handle("GET /stories/{id}/articles", MembersHandler{Svc: svc})
	mux.Handle("DELETE /stories/{id}", DeleteHandler{Svc: svc})
	mux.Handle("POST /matching/run", RunHandler{Runner: runner, Timeout: runTimeout})
}
