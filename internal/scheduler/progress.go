package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vampirenirmal/framesmith/internal/storage"
)

// Progress is the persisted record of a run.
type Progress struct {
	RunID      string             `json:"run_id"`
	Total      int                `json:"total"`
	Outcomes   map[string]Outcome `json:"outcomes"`
	StartTime  time.Time          `json:"start_time"`
	LastUpdate time.Time          `json:"last_update"`
}

// ProgressRepository persists Progress. *storage.Repository[Progress]
// satisfies it.
type ProgressRepository interface {
	Load(ctx context.Context) (Progress, error)
	Save(ctx context.Context, p Progress) error
}

// Tracker records request outcomes and persists after every change, so an
// interrupted run can resume without repeating completed requests.
type Tracker struct {
	mu       sync.RWMutex
	repo     ProgressRepository
	progress Progress
	now      func() time.Time
	logger   *slog.Logger
}

// NewTracker creates a tracker for runID. A nil repo keeps progress in memory.
func NewTracker(repo ProgressRepository, runID string) *Tracker {
	now := time.Now()
	return &Tracker{
		repo: repo,
		progress: Progress{
			RunID:      runID,
			Outcomes:   make(map[string]Outcome),
			StartTime:  now,
			LastUpdate: now,
		},
		now:    time.Now,
		logger: slog.Default().With("component", "progress_tracker"),
	}
}

// Load restores earlier progress. Missing progress starts fresh.
func (t *Tracker) Load(ctx context.Context) error {
	if t.repo == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.repo.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading progress: %w", err)
	}
	if p.Outcomes == nil {
		p.Outcomes = make(map[string]Outcome)
	}
	t.progress = p
	return nil
}

func (t *Tracker) RunID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress.RunID
}

// SetTotal records how many requests the run plans.
func (t *Tracker) SetTotal(ctx context.Context, total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Total = total
	return t.saveLocked(ctx)
}

// Record stores o, replacing any earlier outcome for the same key. A
// completed outcome is never replaced by a worse one.
func (t *Tracker) Record(ctx context.Context, o Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.progress.Outcomes[o.Key]; ok && prev.OK() && !o.OK() {
		return nil
	}
	t.progress.Outcomes[o.Key] = o
	return t.saveLocked(ctx)
}

// Completed returns the successful outcome stored for key.
func (t *Tracker) Completed(key string) (Outcome, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.progress.Outcomes[key]
	if !ok || !o.OK() {
		return Outcome{}, false
	}
	return o, true
}

func (t *Tracker) saveLocked(ctx context.Context) error {
	t.progress.LastUpdate = t.now()
	if t.repo == nil {
		return nil
	}
	if err := t.repo.Save(ctx, t.progress); err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	return nil
}

// Stats summarizes a run.
type Stats struct {
	Total           int       `json:"total"`
	Completed       int       `json:"completed"`
	Failed          int       `json:"failed"`
	Skipped         int       `json:"skipped"`
	Pending         int       `json:"pending"`
	Credits         int       `json:"credits"`
	PercentComplete float64   `json:"percent_complete"`
	StartTime       time.Time `json:"start_time"`
	LastUpdate      time.Time `json:"last_update"`
}

func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Stats{
		Total:      t.progress.Total,
		StartTime:  t.progress.StartTime,
		LastUpdate: t.progress.LastUpdate,
	}
	for _, o := range t.progress.Outcomes {
		switch o.State {
		case StateCompleted:
			s.Completed++
			s.Credits += o.Credits
		case StateFailed:
			s.Failed++
		case StateSkipped:
			s.Skipped++
		}
	}
	s.Pending = max(0, s.Total-s.Completed-s.Failed-s.Skipped)
	if s.Total > 0 {
		s.PercentComplete = float64(s.Completed) / float64(s.Total) * 100
	}
	return s
}

// History returns the most recent successful outcomes, newest first.
func (t *Tracker) History(limit int) []Outcome {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Outcome
	for _, o := range t.progress.Outcomes {
		if o.OK() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
