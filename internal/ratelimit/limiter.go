// Package ratelimit enforces the generation API's per-minute, per-hour and
// per-day request ceilings plus the account's lifetime quota.
//
// Usage is persisted after every mutation so that restarting the process
// does not reset the quota.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vampirenirmal/framesmith/internal/storage"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
	dayWindow    = 24 * time.Hour

	// Extra margin slept after a minute-window wait so the oldest entry has
	// definitely left the window when the check runs again.
	wakeMargin = 100 * time.Millisecond
)

// Limits are the request ceilings. A zero or negative value disables that
// ceiling.
type Limits struct {
	PerMinute int `json:"per_minute" yaml:"per_minute"`
	PerHour   int `json:"per_hour" yaml:"per_hour"`
	PerDay    int `json:"per_day" yaml:"per_day"`
	MaxTotal  int `json:"max_total" yaml:"max_total"`
}

func DefaultLimits() Limits {
	return Limits{
		PerMinute: 10,
		PerHour:   100,
		PerDay:    500,
		MaxTotal:  1000,
	}
}

// State is the persisted usage ledger.
type State struct {
	PerMinute     []time.Time `json:"per_minute"`
	PerHour       []time.Time `json:"per_hour"`
	PerDay        []time.Time `json:"per_day"`
	TotalRequests int         `json:"total_requests"`
}

func (s State) clone() State {
	return State{
		PerMinute:     append([]time.Time(nil), s.PerMinute...),
		PerHour:       append([]time.Time(nil), s.PerHour...),
		PerDay:        append([]time.Time(nil), s.PerDay...),
		TotalRequests: s.TotalRequests,
	}
}

// Repository persists State.
type Repository interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// Clock abstracts time so tests can drive the windows.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limiter is safe for concurrent use. Every check-and-record happens under
// one mutex, so two concurrent Acquire calls never both take the last slot.
type Limiter struct {
	mu     sync.Mutex
	limits Limits
	state  State
	repo   Repository
	clock  Clock
	logger *slog.Logger
}

type Option func(*Limiter)

func WithClock(clock Clock) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New builds a limiter and restores persisted usage from repo. A nil repo
// keeps usage in memory only.
func New(ctx context.Context, limits Limits, repo Repository, opts ...Option) (*Limiter, error) {
	l := &Limiter{
		limits: limits,
		repo:   repo,
		clock:  realClock{},
		logger: slog.Default().With("component", "rate_limiter"),
	}
	for _, opt := range opts {
		opt(l)
	}

	if repo != nil {
		state, err := repo.Load(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			l.logger.Debug("no persisted rate limit state, starting fresh")
		case err != nil:
			return nil, fmt.Errorf("loading rate limit state: %w", err)
		default:
			l.state = state
			l.logger.Debug("rate limit state restored",
				"total_requests", state.TotalRequests,
				"minute_entries", len(state.PerMinute))
		}
	}

	return l, nil
}

// CanMakeRequest reports the first blocking reason in precedence order:
// lifetime quota, minute, hour, day.
func (l *Limiter) CanMakeRequest() Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decide(l.clock.Now())
}

func (l *Limiter) decide(now time.Time) Decision {
	if l.limits.MaxTotal > 0 && l.state.TotalRequests >= l.limits.MaxTotal {
		return Decision{Reason: ReasonQuotaExceeded}
	}

	if l.limits.PerMinute > 0 {
		count, oldest := inWindow(l.state.PerMinute, now, minuteWindow)
		if count >= l.limits.PerMinute {
			remaining := minuteWindow.Milliseconds() - now.Sub(oldest).Milliseconds()
			wait := int((remaining + 999) / 1000)
			if wait < 1 {
				wait = 1
			}
			return Decision{Reason: ReasonMinute, WaitTime: wait}
		}
	}

	if l.limits.PerHour > 0 {
		if count, _ := inWindow(l.state.PerHour, now, hourWindow); count >= l.limits.PerHour {
			return Decision{Reason: ReasonHour}
		}
	}

	if l.limits.PerDay > 0 {
		if count, _ := inWindow(l.state.PerDay, now, dayWindow); count >= l.limits.PerDay {
			return Decision{Reason: ReasonDay}
		}
	}

	return Decision{Allowed: true}
}

// Acquire blocks until a request slot is available and records it.
// A full minute window is waited out automatically; hour, day and quota
// blocks return a *BlockedError immediately.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.clock.Now()
		d := l.decide(now)
		if d.Allowed {
			l.state.PerMinute = append(l.state.PerMinute, now)
			l.state.PerHour = append(l.state.PerHour, now)
			l.state.PerDay = append(l.state.PerDay, now)
			l.state.TotalRequests++
			l.persistLocked(ctx)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		if d.Reason != ReasonMinute {
			l.logger.Warn("request blocked",
				"reason", d.Reason,
				"total_requests", l.Usage().Total)
			return &BlockedError{Reason: d.Reason}
		}

		wait := time.Duration(d.WaitTime)*time.Second + wakeMargin
		l.logger.Info("minute rate limit reached, waiting",
			"wait_seconds", d.WaitTime,
			"limit", l.limits.PerMinute)
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Cleanup drops timestamps that have left their window and persists.
func (l *Limiter) Cleanup(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	before := len(l.state.PerDay)
	l.state.PerMinute = prune(l.state.PerMinute, now, minuteWindow)
	l.state.PerHour = prune(l.state.PerHour, now, hourWindow)
	l.state.PerDay = prune(l.state.PerDay, now, dayWindow)
	l.persistLocked(ctx)

	l.logger.Debug("rate limit windows swept",
		"day_entries_before", before,
		"day_entries_after", len(l.state.PerDay))
}

// StartCleanup sweeps every interval in a background goroutine until ctx is
// done. The returned channel is closed once the goroutine exits.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = time.Minute
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup(ctx)
			}
		}
	}()
	return done
}

// Reset clears all windows and the lifetime counter. It is the only way to
// leave the quota-exceeded state.
func (l *Limiter) Reset(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = State{}
	l.persistLocked(ctx)
	l.logger.Info("rate limit state reset")
}

// Usage is a point-in-time view for display.
type Usage struct {
	Minute int
	Hour   int
	Day    int
	Total  int
	Limits Limits
}

func (l *Limiter) Usage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	minute, _ := inWindow(l.state.PerMinute, now, minuteWindow)
	hour, _ := inWindow(l.state.PerHour, now, hourWindow)
	day, _ := inWindow(l.state.PerDay, now, dayWindow)
	return Usage{
		Minute: minute,
		Hour:   hour,
		Day:    day,
		Total:  l.state.TotalRequests,
		Limits: l.limits,
	}
}

// Snapshot returns a copy of the raw ledger.
func (l *Limiter) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.clone()
}

// persistLocked must be called with l.mu held. Storage failures are logged
// and do not fail the caller.
func (l *Limiter) persistLocked(ctx context.Context) {
	if l.repo == nil {
		return
	}
	if err := l.repo.Save(ctx, l.state.clone()); err != nil {
		l.logger.Error("failed to persist rate limit state", "error", err)
	}
}

// inWindow counts timestamps newer than horizon and returns the oldest of
// them.
func inWindow(ts []time.Time, now time.Time, horizon time.Duration) (int, time.Time) {
	var (
		count  int
		oldest time.Time
	)
	for _, t := range ts {
		if now.Sub(t) < horizon {
			if count == 0 || t.Before(oldest) {
				oldest = t
			}
			count++
		}
	}
	return count, oldest
}

func prune(ts []time.Time, now time.Time, horizon time.Duration) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if now.Sub(t) < horizon {
			kept = append(kept, t)
		}
	}
	return kept
}
