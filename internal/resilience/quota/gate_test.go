package quota_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline/internal/domain/entity"
	"storyline/internal/infra/adapter/persistence/sqlite"
	"storyline/internal/infra/db"
	"storyline/internal/resilience/quota"
	"storyline/tests/fixtures"
)

type memoryRepo struct {
	mu      sync.Mutex
	stored  *entity.QuotaSnapshot
	loads   atomic.Int32
	saves   atomic.Int32
	loadErr error
	// failSaves is the number of Save calls to reject before accepting.
	failSaves atomic.Int32
	saved     chan entity.QuotaSnapshot
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{saved: make(chan entity.QuotaSnapshot, 16)}
}

func (m *memoryRepo) Load(context.Context) (entity.QuotaSnapshot, error) {
	m.loads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return entity.QuotaSnapshot{}, m.loadErr
	}
	if m.stored == nil {
		return entity.UnknownQuota(), nil
	}
	return *m.stored, nil
}

func (m *memoryRepo) Save(_ context.Context, snap entity.QuotaSnapshot) error {
	m.saves.Add(1)
	if m.failSaves.Add(-1) >= 0 {
		return errors.New("database is locked")
	}
	m.mu.Lock()
	m.stored = &snap
	m.mu.Unlock()
	m.saved <- snap
	return nil
}

func clockAt(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestGate_StartsUnknown(t *testing.T) {
	g := quota.NewGate(newMemoryRepo())

	assert.False(t, g.IsRateLimited())
	assert.True(t, g.Allow())
	n, ok := g.Remaining()
	assert.False(t, ok)
	assert.Equal(t, entity.RemainingUnknown, n)
}

func TestGate_LoadOnce(t *testing.T) {
	repo := newMemoryRepo()
	until := fixtures.BaseTime.Add(time.Hour)
	repo.stored = &entity.QuotaSnapshot{RateLimitedUntil: until, Remaining: 0, UpdatedAt: fixtures.BaseTime}

	g := quota.NewGate(repo, quota.WithClock(clockAt(fixtures.BaseTime)))
	require.NoError(t, g.Load(context.Background()))
	require.NoError(t, g.Load(context.Background()))

	assert.Equal(t, int32(1), repo.loads.Load())
	assert.True(t, g.IsRateLimited())
	assert.False(t, g.Allow())
}

func TestGate_LoadErrorIsSticky(t *testing.T) {
	repo := newMemoryRepo()
	repo.loadErr = errors.New("no such table: quota_state")
	g := quota.NewGate(repo)

	assert.Error(t, g.Load(context.Background()))
	assert.Error(t, g.Load(context.Background()))
	assert.Equal(t, int32(1), repo.loads.Load())
	assert.True(t, g.Allow(), "an unreadable state leaves the gate open")
}

func TestGate_RecordBeforeLoadWins(t *testing.T) {
	repo := newMemoryRepo()
	repo.stored = &entity.QuotaSnapshot{Remaining: 500}
	g := quota.NewGate(repo)

	g.RecordRemaining(7)
	require.NoError(t, g.Load(context.Background()))

	n, ok := g.Remaining()
	assert.True(t, ok)
	assert.Equal(t, 7, n)
}

func TestGate_RecordRateLimited(t *testing.T) {
	now := fixtures.BaseTime
	g := quota.NewGate(newMemoryRepo(), quota.WithClock(func() time.Time { return now }))

	g.RecordRateLimited(now.Add(10 * time.Minute))
	assert.True(t, g.IsRateLimited())
	n, _ := g.Remaining()
	assert.Zero(t, n)

	g.RecordRateLimited(now.Add(time.Minute))
	assert.True(t, g.Snapshot().RateLimitedUntil.Equal(now.Add(10*time.Minute)),
		"an earlier deadline does not shorten the block")

	now = now.Add(11 * time.Minute)
	assert.False(t, g.IsRateLimited())
	assert.True(t, g.Allow())
}

func TestGate_ConcurrentRecords(t *testing.T) {
	g := quota.NewGate(newMemoryRepo())
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			g.RecordRemaining(n)
			_ = g.Allow()
		}(i)
	}
	wg.Wait()

	n, ok := g.Remaining()
	assert.True(t, ok)
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 100)
}

func TestGate_RunPersistsAndFlushes(t *testing.T) {
	repo := newMemoryRepo()
	g := quota.NewGate(repo, quota.WithClock(clockAt(fixtures.BaseTime)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	g.RecordRemaining(40)
	select {
	case snap := <-repo.saved:
		assert.Equal(t, 40, snap.Remaining)
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot was not persisted")
	}

	g.RecordRemaining(39)
	cancel()
	<-done

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.NotNil(t, repo.stored)
	assert.Equal(t, 39, repo.stored.Remaining, "the latest state is flushed on shutdown")
}

func TestGate_RunRetriesFailedWrite(t *testing.T) {
	repo := newMemoryRepo()
	repo.failSaves.Store(1)
	g := quota.NewGate(repo,
		quota.WithClock(clockAt(fixtures.BaseTime)),
		quota.WithRetryInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	g.RecordRateLimited(fixtures.BaseTime.Add(time.Hour))
	select {
	case snap := <-repo.saved:
		assert.True(t, snap.RateLimitedUntil.Equal(fixtures.BaseTime.Add(time.Hour)))
	case <-time.After(2 * time.Second):
		t.Fatal("failed write was not retried")
	}
	assert.GreaterOrEqual(t, repo.saves.Load(), int32(2))
}

func TestGate_RunWithoutChangesWritesNothing(t *testing.T) {
	repo := newMemoryRepo()
	g := quota.NewGate(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g.Run(ctx)

	assert.Zero(t, repo.saves.Load())
}

func TestGate_SurvivesRestart(t *testing.T) {
	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.MigrateUpSQLite(conn))
	repo := sqlite.NewQuotaRepo(conn)
	until := fixtures.BaseTime.Add(30 * time.Minute)

	first := quota.NewGate(repo, quota.WithClock(clockAt(fixtures.BaseTime)))
	ctx, cancel := context.WithCancel(context.Background())
	first.RecordRateLimited(until)
	cancel()
	first.Run(ctx)

	second := quota.NewGate(repo, quota.WithClock(clockAt(fixtures.BaseTime.Add(time.Minute))))
	require.NoError(t, second.Load(context.Background()))
	assert.True(t, second.IsRateLimited())
	assert.True(t, second.Snapshot().RateLimitedUntil.Equal(until))
}
