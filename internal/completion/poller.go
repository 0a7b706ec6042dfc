package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vampirenirmal/framesmith/internal/genapi"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxPolls     = 120
)

// StatusSource reads job status from the generation API.
type StatusSource interface {
	Status(ctx context.Context, uuid string) (genapi.Response, error)
}

// Poller checks a job at a fixed interval and delivers the terminal status
// to the hub.
type Poller struct {
	source      StatusSource
	hub         *Hub
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

type PollerOption func(*Poller)

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = d
	}
}

func WithMaxAttempts(n int) PollerOption {
	return func(p *Poller) {
		p.maxAttempts = n
	}
}

func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

func NewPoller(source StatusSource, hub *Hub, opts ...PollerOption) *Poller {
	p := &Poller{
		source:      source,
		hub:         hub,
		interval:    DefaultPollInterval,
		maxAttempts: DefaultMaxPolls,
		logger:      slog.Default().With("component", "poller"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch polls uuid until it reaches a terminal status, which it delivers to
// the hub. Transient errors use up an attempt and polling goes on; a fatal
// API error stops it.
func (p *Poller) Watch(ctx context.Context, uuid string) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		resp, err := p.source.Status(ctx, uuid)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if genapi.IsFatal(err) {
				return fmt.Errorf("polling %s: %w", uuid, err)
			}
			p.logger.Warn("status poll failed",
				"uuid", uuid,
				"attempt", attempt,
				"error", err)
			continue
		}
		if resp.UUID == "" {
			resp.UUID = uuid
		}

		p.hub.Deliver(FromResponse(resp, SourcePoll))
		if resp.Status.Terminal() {
			return nil
		}
	}

	p.logger.Warn("polling exhausted",
		"uuid", uuid,
		"attempts", p.maxAttempts,
		"interval", p.interval.String())
	return fmt.Errorf("%w after %d polls (uuid %s)", ErrTimeout, p.maxAttempts, uuid)
}

// Mode selects which transports resolve a job.
type Mode string

const (
	ModePoll    Mode = "poll"
	ModeWebhook Mode = "webhook"
	// ModeBoth polls while also accepting webhook pushes; whichever
	// arrives first wins.
	ModeBoth Mode = "both"
)

// Awaiter is what the scheduler uses to wait for a job.
type Awaiter struct {
	hub     *Hub
	poller  *Poller
	mode    Mode
	timeout time.Duration
}

func NewAwaiter(hub *Hub, poller *Poller, mode Mode, timeout time.Duration) *Awaiter {
	if mode == "" {
		mode = ModePoll
	}
	return &Awaiter{hub: hub, poller: poller, mode: mode, timeout: timeout}
}

// Await returns the terminal result for uuid. A failed job is returned as a
// Result with Err() set, not as an error.
func (a *Awaiter) Await(ctx context.Context, uuid string) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var pollErr chan error
	if a.mode != ModeWebhook && a.poller != nil {
		pollErr = make(chan error, 1)
		go func() {
			pollErr <- a.poller.Watch(ctx, uuid)
		}()
	}

	type outcome struct {
		r   Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := a.hub.Await(ctx, uuid, a.timeout)
		done <- outcome{r, err}
	}()

	for {
		select {
		case o := <-done:
			return o.r, o.err
		case err := <-pollErr:
			pollErr = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				return Result{}, err
			}
		}
	}
}
