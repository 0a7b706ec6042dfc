package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vampirenirmal/framesmith/internal/storage"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 7, 16, 15, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, limits Limits, repo Repository) (*Limiter, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	l, err := New(context.Background(), limits, repo, WithClock(clock))
	require.NoError(t, err)
	return l, clock
}

func TestMinuteWindowBoundary(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, Limits{PerMinute: 3, PerHour: 100, PerDay: 500, MaxTotal: 1000}, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	d := l.CanMakeRequest()
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMinute, d.Reason)
	assert.Equal(t, 60, d.WaitTime)

	clock.Advance(59500 * time.Millisecond)
	d = l.CanMakeRequest()
	assert.Equal(t, ReasonMinute, d.Reason)
	assert.Equal(t, 1, d.WaitTime, "half a second left rounds up to one")

	clock.Advance(500 * time.Millisecond)
	assert.True(t, l.CanMakeRequest().Allowed, "oldest entry leaves the window at exactly 60s")
}

func TestAcquireWaitsOutMinuteWindow(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, Limits{PerMinute: 2, PerHour: 100, PerDay: 500, MaxTotal: 1000}, nil)

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	require.Len(t, clock.slept, 1)
	assert.Equal(t, 60*time.Second+wakeMargin, clock.slept[0])
	assert.Equal(t, 3, l.Usage().Total)
	assert.Equal(t, 1, l.Usage().Minute)
}

func TestAcquireHonorsCancellation(t *testing.T) {
	l, _ := newTestLimiter(t, Limits{PerMinute: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Acquire(ctx))
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
	assert.Equal(t, 1, l.Usage().Total)
}

func TestQuotaIsTerminal(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, Limits{PerMinute: 10, PerHour: 100, PerDay: 500, MaxTotal: 2}, nil)

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	for _, advance := range []time.Duration{0, time.Hour, 48 * time.Hour} {
		clock.Advance(advance)
		d := l.CanMakeRequest()
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonQuotaExceeded, d.Reason)
	}

	err := l.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.False(t, blocked.Recoverable())
	assert.Empty(t, clock.slept, "quota blocks are never waited out")

	l.Reset(ctx)
	assert.True(t, l.CanMakeRequest().Allowed)
}

func TestPrecedence(t *testing.T) {
	ctx := context.Background()
	// Both the minute window and the quota are full; quota wins.
	l, _ := newTestLimiter(t, Limits{PerMinute: 2, PerHour: 2, PerDay: 2, MaxTotal: 2}, nil)
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, ReasonQuotaExceeded, l.CanMakeRequest().Reason)

	// Minute is checked before hour.
	l, _ = newTestLimiter(t, Limits{PerMinute: 2, PerHour: 2, PerDay: 2, MaxTotal: 100}, nil)
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, ReasonMinute, l.CanMakeRequest().Reason)
}

func TestHourAndDayBlocksReturnImmediately(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
		reason Reason
	}{
		{"hour", Limits{PerMinute: 10, PerHour: 2, PerDay: 500, MaxTotal: 1000}, ReasonHour},
		{"day", Limits{PerMinute: 10, PerHour: 100, PerDay: 2, MaxTotal: 1000}, ReasonDay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			l, clock := newTestLimiter(t, tt.limits, nil)
			require.NoError(t, l.Acquire(ctx))
			require.NoError(t, l.Acquire(ctx))

			err := l.Acquire(ctx)
			var blocked *BlockedError
			require.True(t, errors.As(err, &blocked))
			assert.Equal(t, tt.reason, blocked.Reason)
			assert.True(t, blocked.Recoverable())
			assert.ErrorIs(t, err, ErrRateLimited)
			assert.Empty(t, clock.slept)
		})
	}
}

func TestStatePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewRepository[State](storage.NewMemory(), "rate_limiter")

	l, _ := newTestLimiter(t, DefaultLimits(), repo)
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	restored, _ := newTestLimiter(t, DefaultLimits(), repo)
	usage := restored.Usage()
	assert.Equal(t, 4, usage.Total)
	assert.Equal(t, 4, usage.Minute)
}

func TestCleanupPrunesToHorizon(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewRepository[State](storage.NewMemory(), "rate_limiter")
	l, clock := newTestLimiter(t, DefaultLimits(), repo)

	require.NoError(t, l.Acquire(ctx))
	clock.Advance(2 * time.Minute)
	require.NoError(t, l.Acquire(ctx))

	l.Cleanup(ctx)
	snap := l.Snapshot()
	assert.Len(t, snap.PerMinute, 1)
	assert.Len(t, snap.PerHour, 2)
	assert.Len(t, snap.PerDay, 2)
	assert.Equal(t, 2, snap.TotalRequests, "cleanup never touches the lifetime total")

	persisted, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted.PerMinute, 1)

	clock.Advance(25 * time.Hour)
	l.Cleanup(ctx)
	snap = l.Snapshot()
	assert.Empty(t, snap.PerDay)
	assert.Equal(t, 2, snap.TotalRequests)
}

func TestConcurrentAcquireNeverOverbooks(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Limits{PerMinute: 1000, PerHour: 1000, PerDay: 1000, MaxTotal: 25}, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, granted)
	assert.Equal(t, 25, l.Usage().Total)
}

func TestStartCleanupStopsWithContext(t *testing.T) {
	l, _ := newTestLimiter(t, DefaultLimits(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := l.StartCleanup(ctx, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup goroutine did not stop")
	}
}
