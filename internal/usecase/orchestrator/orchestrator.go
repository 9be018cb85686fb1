// Package orchestrator runs matching passes: for every tracked story it
// scores the untracked articles published around the story's latest coverage
// and attaches the strong matches.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"storyline/internal/domain/entity"
	"storyline/internal/domain/matching"
	"storyline/internal/observability/logging"
	"storyline/internal/observability/metrics"
	"storyline/internal/observability/tracing"
	"storyline/internal/repository"
	"storyline/internal/usecase/story"
)

// ErrPassFailed means the pass could not start at all, typically because the
// tracked stories could not be enumerated. The whole pass may be retried.
var ErrPassFailed = errors.New("matching pass failed")

// DefaultParallelism is the number of stories matched concurrently.
const DefaultParallelism = 4

// StoryStore is the part of story.Service a pass needs.
type StoryStore interface {
	List(ctx context.Context) ([]*entity.Story, error)
	Members(ctx context.Context, storyID int64) ([]entity.StoryMember, error)
	CandidatesInWindow(ctx context.Context, w entity.Window) ([]*entity.Article, error)
	Attach(ctx context.Context, storyID, articleID int64) (bool, error)
}

// PassResult summarizes one matching pass.
type PassResult struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	// Outcomes holds one entry per evaluated candidate, in story list order
	// then candidate order.
	Outcomes []entity.MatchOutcome `json:"outcomes"`
	// Suggestions are the WEAK outcomes, surfaced for review only.
	Suggestions []entity.MatchOutcome `json:"suggestions"`

	StoriesTotal      int `json:"stories_total"`
	StoriesProcessed  int `json:"stories_processed"`
	StoriesFailed     int `json:"stories_failed"`
	StoriesSkipped    int `json:"stories_skipped"`
	Candidates        int `json:"candidates"`
	CandidatesSkipped int `json:"candidates_skipped"`
	Attached          int `json:"attached"`

	// Interrupted is set when the context was cancelled mid-pass. Work done
	// before that point is kept.
	Interrupted bool          `json:"interrupted"`
	Duration    time.Duration `json:"duration_ns"`
}

// Orchestrator runs matching passes. It performs no network I/O: it only
// reads stored articles and embeddings.
type Orchestrator struct {
	stories    StoryStore
	embeddings repository.ArticleEmbeddingRepository

	parallelism int
	now         func() time.Time
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithParallelism bounds the number of stories matched at once.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithClock replaces time.Now, which anchors the temporal windows.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the base logger. Each pass adds its run ID.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithTracer overrides the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = tracer }
}

// New creates an Orchestrator.
func New(stories StoryStore, embeddings repository.ArticleEmbeddingRepository, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stories:     stories,
		embeddings:  embeddings,
		parallelism: DefaultParallelism,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = tracing.GetTracer()
	}
	return o
}

// storyResult is what one story contributes to the pass.
type storyResult struct {
	outcomes          []entity.MatchOutcome
	candidates        int
	candidatesSkipped int
	attached          int
	status            storyStatus
}

type storyStatus int

const (
	statusPending storyStatus = iota
	statusProcessed
	statusSkipped
	statusFailed
	statusInterrupted
)

// RunMatchingPass matches every tracked story against its candidate window.
//
// A failing story is logged and counted; the others continue. Cancellation
// stops the pass early with Interrupted set and a nil error. Only a failure
// to list the stories returns ErrPassFailed.
func (o *Orchestrator) RunMatchingPass(ctx context.Context) (*PassResult, error) {
	result := &PassResult{
		RunID:       uuid.NewString(),
		StartedAt:   o.now(),
		Outcomes:    []entity.MatchOutcome{},
		Suggestions: []entity.MatchOutcome{},
	}
	logger := logging.WithRunID(o.logger, result.RunID)
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "matching.pass",
		trace.WithAttributes(attribute.String("run_id", result.RunID)))
	defer span.End()

	stories, err := o.stories.List(ctx)
	if err != nil {
		result.Duration = time.Since(start)
		if ctx.Err() != nil {
			result.Interrupted = true
			span.SetAttributes(attribute.Bool("interrupted", true))
			return result, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "list stories")
		metrics.RecordMatchingPass("failed", result.Duration, 0, 0, 0, 0)
		logger.Error("matching pass failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: list stories: %v", ErrPassFailed, err)
	}
	result.StoriesTotal = len(stories)
	logger.Info("matching pass started", slog.Int("stories", len(stories)))

	results := make([]storyResult, len(stories))
	var g errgroup.Group
	g.SetLimit(o.parallelism)
	for i, s := range stories {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = o.matchStory(ctx, logger, s)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		result.Outcomes = append(result.Outcomes, r.outcomes...)
		result.Candidates += r.candidates
		result.CandidatesSkipped += r.candidatesSkipped
		result.Attached += r.attached
		switch r.status {
		case statusProcessed:
			result.StoriesProcessed++
		case statusSkipped:
			result.StoriesSkipped++
		case statusFailed:
			result.StoriesFailed++
		case statusInterrupted, statusPending:
			result.Interrupted = true
		}
	}
	if ctx.Err() != nil {
		result.Interrupted = true
	}
	for _, outcome := range result.Outcomes {
		metrics.RecordMatchOutcome(outcome)
		if outcome.Strength == entity.MatchWeak {
			result.Suggestions = append(result.Suggestions, outcome)
		}
	}
	result.Duration = time.Since(start)

	status := "completed"
	if result.Interrupted {
		status = "interrupted"
	}
	metrics.RecordMatchingPass(status, result.Duration,
		result.StoriesProcessed, result.StoriesFailed, result.StoriesSkipped, result.CandidatesSkipped)
	metrics.UpdateStoriesTracked(result.StoriesTotal)
	span.SetAttributes(
		attribute.Int("stories.total", result.StoriesTotal),
		attribute.Int("stories.failed", result.StoriesFailed),
		attribute.Int("candidates", result.Candidates),
		attribute.Int("attached", result.Attached),
		attribute.Bool("interrupted", result.Interrupted),
	)

	logger.Info("matching pass finished",
		slog.String("status", status),
		slog.Int("processed", result.StoriesProcessed),
		slog.Int("failed", result.StoriesFailed),
		slog.Int("skipped", result.StoriesSkipped),
		slog.Int("candidates", result.Candidates),
		slog.Int("candidates_skipped", result.CandidatesSkipped),
		slog.Int("attached", result.Attached),
		slog.Int("suggestions", len(result.Suggestions)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

func (o *Orchestrator) matchStory(ctx context.Context, logger *slog.Logger, s *entity.Story) (res storyResult) {
	ctx, span := o.tracer.Start(ctx, "matching.story",
		trace.WithAttributes(attribute.Int64("story_id", s.ID)))
	defer span.End()

	logger = logger.With(slog.Int64("story_id", s.ID))
	defer func() {
		if r := recover(); r != nil {
			res = storyResult{status: statusFailed}
			err := fmt.Errorf("panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "story panicked")
			logger.Error("panic in story matching",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	res, err := o.evaluate(ctx, logger, s)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		res.status = statusInterrupted
	case errors.Is(err, story.ErrStoryNotFound):
		// Deleted while the pass was running.
		res.status = statusSkipped
	default:
		res.status = statusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "story failed")
		logger.Warn("story matching failed", slog.Any("error", err))
	}
	span.SetAttributes(
		attribute.Int("candidates", res.candidates),
		attribute.Int("attached", res.attached),
	)
	return res
}

// evaluate scores the story's candidates. Outcomes gathered before an error
// are returned with it; attachments already made are not undone.
func (o *Orchestrator) evaluate(ctx context.Context, logger *slog.Logger, s *entity.Story) (storyResult, error) {
	var res storyResult

	members, err := o.stories.Members(ctx, s.ID)
	if err != nil {
		return res, fmt.Errorf("members: %w", err)
	}
	if len(members) == 0 {
		res.status = statusSkipped
		return res, nil
	}

	memberArticles := make([]*entity.Article, 0, len(members))
	anchor := members[0].Article.PublishedAt
	for _, m := range members {
		memberArticles = append(memberArticles, m.Article)
		if m.Article.PublishedAt.After(anchor) {
			anchor = m.Article.PublishedAt
		}
	}

	window := matching.WindowFor(anchor, o.now())
	candidates, err := o.stories.CandidatesInWindow(ctx, window)
	if err != nil {
		return res, fmt.Errorf("candidates: %w", err)
	}
	if len(candidates) == 0 {
		res.status = statusProcessed
		return res, nil
	}

	ids := make([]int64, 0, len(members)+len(candidates))
	for _, a := range memberArticles {
		ids = append(ids, a.ID)
	}
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	vectors, err := o.embeddings.FindByArticleIDs(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("embeddings: %w", err)
	}

	memberVectors := make([][]float32, 0, len(members))
	for _, a := range memberArticles {
		if v, ok := vectors[a.ID]; ok {
			memberVectors = append(memberVectors, v)
		}
	}
	if len(memberVectors) == 0 {
		logger.Debug("story has no embedded members")
		res.status = statusSkipped
		return res, nil
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.candidates++

		vec, ok := vectors[candidate.ID]
		if !ok {
			res.candidatesSkipped++
			continue
		}
		score, compared := matching.MaxSimilarity(vec, memberVectors)
		if compared == 0 {
			res.candidatesSkipped++
			logger.Debug("no comparable member embedding",
				slog.Int64("article_id", candidate.ID), slog.Int("dimension", len(vec)))
			continue
		}

		outcome := entity.MatchOutcome{
			StoryID:    s.ID,
			ArticleID:  candidate.ID,
			ArticleURL: candidate.URL,
			Score:      score,
			Strength:   matching.Strength(score),
		}

		if outcome.Strength == entity.MatchStrong {
			novel, err := matching.IsNovelContent(vec, matching.Comparable(vec, memberVectors))
			if err != nil {
				logger.Debug("novelty check skipped",
					slog.Int64("article_id", candidate.ID), slog.Any("error", err))
				novel = false
			}
			outcome.Novel = novel
			outcome.NewPerspective = matching.HasNewPerspective(memberArticles, candidate)

			attached, err := o.stories.Attach(ctx, s.ID, candidate.ID)
			switch {
			case errors.Is(err, story.ErrArticleTracked):
				// Another story claimed it first.
			case err != nil:
				res.outcomes = append(res.outcomes, outcome)
				return res, fmt.Errorf("attach article %d: %w", candidate.ID, err)
			case attached:
				outcome.Attached = true
				res.attached++
				memberVectors = append(memberVectors, vec)
				memberArticles = append(memberArticles, candidate)
			}
		}
		res.outcomes = append(res.outcomes, outcome)
	}

	res.status = statusProcessed
	return res, nil
}
