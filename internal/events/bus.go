// Package events provides an in-process event bus between the scheduler and
// anything that wants to observe generation outcomes.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types published during a run.
const (
	TypeImageCompleted = "image.completed"
	TypeImageFailed    = "image.failed"
	TypeVideoCompleted = "video.completed"
	TypeVideoFailed    = "video.failed"
	TypeAllCompleted   = "all.completed"
	TypeWebhookTest    = "webhook.test"
)

// Common subscription patterns.
const (
	PatternAll        = `.*`
	PatternImages     = `^image\.`
	PatternVideos     = `^video\.`
	PatternFailures   = `\.failed$`
	PatternCompletion = `\.completed$`
)

// ErrStopped is returned by Publish after Stop.
var ErrStopped = errors.New("event bus is stopped")

// patternNames maps configured selection names to patterns.
var patternNames = map[string]string{
	"all":       PatternAll,
	"completed": PatternCompletion,
	"failed":    PatternFailures,
	"images":    PatternImages,
	"videos":    PatternVideos,
}

// PatternFor resolves a selection name (all, completed, failed, images,
// videos). An empty name selects everything.
func PatternFor(name string) (string, error) {
	if name == "" {
		return PatternAll, nil
	}
	p, ok := patternNames[name]
	if !ok {
		return "", fmt.Errorf("unknown event selection %q", name)
	}
	return p, nil
}

// Event is a single published occurrence.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Handler processes events.
type Handler func(ctx context.Context, event Event) error

// Options configure a subscription.
type Options struct {
	// Async handlers run on their own goroutine and never block Publish.
	Async bool

	// Timeout bounds a single handler call. Zero means no timeout.
	Timeout time.Duration

	// Filter narrows matching beyond the pattern.
	Filter func(Event) bool

	// Priority orders synchronous delivery, higher first.
	Priority int
}

// Subscription is an active registration.
type Subscription struct {
	ID      string
	Pattern string

	handler  Handler
	opts     Options
	compiled *regexp.Regexp
	seq      int
}

// Metrics counts bus activity.
type Metrics struct {
	Published int64
	Delivered int64
	Failed    int64
}

// Bus fans events out to subscribers whose pattern matches the event type.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	seq     int
	stopped bool
	wg      sync.WaitGroup
	logger  *slog.Logger

	metricsMu sync.Mutex
	metrics   Metrics

	now func() time.Time
}

// New creates a running bus. A nil logger uses the default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default().With("component", "events")
	}
	return &Bus{
		subs:   make(map[string]*Subscription),
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe registers handler for event types matching the regular
// expression pattern.
func (b *Bus) Subscribe(pattern string, handler Handler, opts ...Options) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if pattern == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	sub := &Subscription{
		ID:       "sub_" + uuid.NewString()[:8],
		Pattern:  pattern,
		handler:  handler,
		opts:     o,
		compiled: compiled,
		seq:      b.seq,
	}
	b.subs[sub.ID] = sub

	b.logger.Debug("subscription created", "subscription_id", sub.ID, "pattern", pattern, "async", o.Async)
	return sub, nil
}

// Unsubscribe removes a subscription by ID.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return fmt.Errorf("subscription %q not found", id)
	}
	delete(b.subs, id)
	return nil
}

// Publish delivers event to every matching subscription. Synchronous
// handler errors are logged and counted, never returned.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return ErrStopped
	}
	matching := b.matchLocked(event)
	// Add under the read lock so Stop cannot miss an async delivery.
	for _, sub := range matching {
		if sub.opts.Async {
			b.wg.Add(1)
		}
	}
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = "evt_" + uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}
	b.count(func(m *Metrics) { m.Published++ })

	if len(matching) == 0 {
		b.logger.Debug("no subscribers for event", "event_type", event.Type)
		return nil
	}

	for _, sub := range matching {
		if sub.opts.Async {
			go func(sub *Subscription) {
				defer b.wg.Done()
				// Detached so a cancelled publisher does not abort notification.
				b.deliver(context.WithoutCancel(ctx), event, sub)
			}(sub)
			continue
		}
		b.deliver(ctx, event, sub)
	}
	return nil
}

// Stop rejects further publishes and waits for async handlers to finish.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.wg.Wait()
	b.logger.Debug("event bus stopped")
}

// Metrics returns a copy of the counters.
func (b *Bus) Metrics() Metrics {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	return b.metrics
}

func (b *Bus) matchLocked(event Event) []*Subscription {
	var out []*Subscription
	for _, sub := range b.subs {
		if !sub.compiled.MatchString(event.Type) {
			continue
		}
		if sub.opts.Filter != nil && !sub.opts.Filter(event) {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].opts.Priority != out[j].opts.Priority {
			return out[i].opts.Priority > out[j].opts.Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (b *Bus) deliver(ctx context.Context, event Event, sub *Subscription) {
	if sub.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sub.opts.Timeout)
		defer cancel()
	}
	if err := b.safeCall(ctx, event, sub); err != nil {
		b.logger.Error("event handler failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"subscription_id", sub.ID,
			"error", err,
		)
		b.count(func(m *Metrics) { m.Failed++ })
		return
	}
	b.count(func(m *Metrics) { m.Delivered++ })
}

func (b *Bus) safeCall(ctx context.Context, event Event, sub *Subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return sub.handler(ctx, event)
}

func (b *Bus) count(fn func(*Metrics)) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	fn(&b.metrics)
}
