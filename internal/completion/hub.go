// Package completion reconciles asynchronous generation jobs. Polling and
// webhook pushes both deliver into one Hub keyed by job UUID, so waiters do
// not care which transport finished the job.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vampirenirmal/framesmith/internal/genapi"
)

var ErrTimeout = errors.New("timed out waiting for generation to complete")

// Source names the transport that delivered a result.
type Source string

const (
	SourceSync    Source = "sync"
	SourcePoll    Source = "poll"
	SourceWebhook Source = "webhook"
)

// Result is the single completion shape for every transport.
type Result struct {
	UUID        string        `json:"uuid"`
	Status      genapi.Status `json:"status"`
	MediaURL    string        `json:"media_url,omitempty"`
	Credits     int           `json:"credits,omitempty"`
	Percentage  int           `json:"percentage,omitempty"`
	Description string        `json:"description,omitempty"`
	Source      Source        `json:"source"`
}

func FromResponse(r genapi.Response, source Source) Result {
	return Result{
		UUID:        r.UUID,
		Status:      r.Status,
		MediaURL:    r.MediaURL(),
		Credits:     r.Credits,
		Percentage:  r.StatusPercentage,
		Description: r.StatusDesc,
		Source:      source,
	}
}

// Err reports a failed job as genapi.ErrGenerationFailed.
func (r Result) Err() error {
	if r.Status != genapi.StatusFailed {
		return nil
	}
	if r.Description != "" {
		return fmt.Errorf("%w: %s", genapi.ErrGenerationFailed, r.Description)
	}
	return genapi.ErrGenerationFailed
}

type buffered struct {
	result Result
	at     time.Time
}

// Hub hands terminal results to whoever awaits the UUID. A result that
// arrives before its waiter is buffered for bufferTTL.
type Hub struct {
	mu        sync.Mutex
	waiters   map[string]chan Result
	early     map[string]buffered
	bufferTTL time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type HubOption func(*Hub)

func WithBufferTTL(ttl time.Duration) HubOption {
	return func(h *Hub) {
		h.bufferTTL = ttl
	}
}

func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		waiters:   make(map[string]chan Result),
		early:     make(map[string]buffered),
		bufferTTL: 10 * time.Minute,
		now:       time.Now,
		logger:    slog.Default().With("component", "completion_hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Deliver routes a result to its waiter. Non-terminal updates are only
// logged. It reports whether a waiter took the result.
func (h *Hub) Deliver(r Result) bool {
	if r.UUID == "" {
		h.logger.Warn("dropping completion without uuid", "source", r.Source)
		return false
	}
	if !r.Status.Terminal() {
		h.logger.Debug("generation progress",
			"uuid", r.UUID,
			"percentage", r.Percentage,
			"source", r.Source)
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneLocked()

	if ch, ok := h.waiters[r.UUID]; ok {
		delete(h.waiters, r.UUID)
		ch <- r
		h.logger.Debug("completion delivered",
			"uuid", r.UUID,
			"status", r.Status.String(),
			"source", r.Source)
		return true
	}

	if _, dup := h.early[r.UUID]; !dup {
		h.early[r.UUID] = buffered{result: r, at: h.now()}
		h.logger.Debug("completion buffered before waiter", "uuid", r.UUID, "source", r.Source)
	}
	return false
}

// Await blocks until a terminal result for uuid arrives, ctx is done or
// timeout elapses. A zero timeout waits on ctx alone.
func (h *Hub) Await(ctx context.Context, uuid string, timeout time.Duration) (Result, error) {
	h.mu.Lock()
	if b, ok := h.early[uuid]; ok {
		delete(h.early, uuid)
		h.mu.Unlock()
		return b.result, nil
	}
	ch := make(chan Result, 1)
	h.waiters[uuid] = ch
	h.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		h.forget(uuid, ch)
		return Result{}, ctx.Err()
	case <-expired:
		h.forget(uuid, ch)
		return Result{}, fmt.Errorf("%w after %s (uuid %s)", ErrTimeout, timeout, uuid)
	}
}

func (h *Hub) forget(uuid string, ch chan Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.waiters[uuid] == ch {
		delete(h.waiters, uuid)
	}
}

// Waiting returns the number of registered waiters.
func (h *Hub) Waiting() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters)
}

func (h *Hub) pruneLocked() {
	cutoff := h.now().Add(-h.bufferTTL)
	for id, b := range h.early {
		if b.at.Before(cutoff) {
			delete(h.early, id)
		}
	}
}
