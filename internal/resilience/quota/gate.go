// Package quota keeps the upstream request quota shared by the producers
// that talk to rate-limited services. The in-memory snapshot is
// authoritative; a background loop mirrors it to the database so a restart
// resumes with the last known state.
package quota

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"storyline/internal/domain/entity"
	"storyline/internal/observability/metrics"
	"storyline/internal/repository"
)

// flushTimeout bounds the final write on shutdown.
const flushTimeout = 5 * time.Second

// DefaultRetryInterval is how often Run retries a failed write while no new
// update arrives.
const DefaultRetryInterval = 30 * time.Second

// Gate answers "may I call upstream now?" without blocking and records what
// upstream reported. It is safe for concurrent use.
type Gate struct {
	repo          repository.QuotaRepository
	now           func() time.Time
	logger        *slog.Logger
	retryInterval time.Duration

	state   atomic.Pointer[entity.QuotaSnapshot]
	initial *entity.QuotaSnapshot

	loadOnce sync.Once
	loadErr  error

	// dirty holds at most one pending signal, so bursts of updates coalesce
	// into a single write.
	dirty chan struct{}
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithRetryInterval sets how often a failed write is retried.
func WithRetryInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.retryInterval = d
		}
	}
}

// WithLogger sets the logger used by the persistence loop.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// NewGate creates a gate whose state is unknown until Load or a Record call.
func NewGate(repo repository.QuotaRepository, opts ...Option) *Gate {
	g := &Gate{
		repo:          repo,
		now:           time.Now,
		logger:        slog.Default(),
		retryInterval: DefaultRetryInterval,
		dirty:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	initial := entity.UnknownQuota()
	g.initial = &initial
	g.state.Store(g.initial)
	return g
}

// Load reads the persisted snapshot. Only the first call touches the
// database; later calls return its result. A record made before Load
// completes wins over the stored copy.
func (g *Gate) Load(ctx context.Context) error {
	g.loadOnce.Do(func() {
		snap, err := g.repo.Load(ctx)
		if err != nil {
			g.loadErr = err
			return
		}
		if g.state.CompareAndSwap(g.initial, &snap) {
			metrics.UpdateQuota(snap, g.now())
		}
	})
	return g.loadErr
}

// Snapshot returns the current in-memory state.
func (g *Gate) Snapshot() entity.QuotaSnapshot {
	return *g.state.Load()
}

// IsRateLimited reports whether upstream asked us to back off until a time
// that has not passed yet.
func (g *Gate) IsRateLimited() bool {
	return g.state.Load().IsRateLimited(g.now())
}

// Remaining returns the last reported remaining request count. ok is false
// when no value is known.
func (g *Gate) Remaining() (n int, ok bool) {
	s := g.state.Load()
	return s.Remaining, s.RemainingKnown()
}

// Allow reports whether a producer may call upstream now.
func (g *Gate) Allow() bool {
	return !g.IsRateLimited()
}

// RecordRateLimited blocks upstream calls until the given time. An earlier
// deadline never shortens one already recorded.
func (g *Gate) RecordRateLimited(until time.Time) {
	g.update(func(s *entity.QuotaSnapshot) {
		if until.After(s.RateLimitedUntil) {
			s.RateLimitedUntil = until
		}
		s.Remaining = 0
	})
}

// RecordRemaining stores the remaining request count reported upstream.
func (g *Gate) RecordRemaining(n int) {
	if n < 0 {
		n = entity.RemainingUnknown
	}
	g.update(func(s *entity.QuotaSnapshot) {
		s.Remaining = n
	})
}

func (g *Gate) update(mutate func(*entity.QuotaSnapshot)) {
	now := g.now()
	for {
		old := g.state.Load()
		next := *old
		mutate(&next)
		next.UpdatedAt = now
		if g.state.CompareAndSwap(old, &next) {
			metrics.UpdateQuota(next, now)
			break
		}
	}
	select {
	case g.dirty <- struct{}{}:
	default:
	}
}

// Run mirrors the snapshot to the database whenever it changes, until ctx is
// done. A failed write is retried every retry interval until one succeeds or
// a newer snapshot replaces it. On shutdown the latest snapshot is written one
// last time.
func (g *Gate) Run(ctx context.Context) {
	var saved *entity.QuotaSnapshot
	flush := func(ctx context.Context) {
		current := g.state.Load()
		if current == saved || current == g.initial {
			return
		}
		if err := g.repo.Save(ctx, *current); err != nil {
			g.logger.Warn("failed to persist quota state", slog.Any("error", err))
			return
		}
		saved = current
	}

	retry := time.NewTicker(g.retryInterval)
	defer retry.Stop()

	for {
		select {
		case <-g.dirty:
			flush(ctx)
		case <-retry.C:
			flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			flush(final)
			cancel()
			return
		}
	}
}
