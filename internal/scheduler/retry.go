package scheduler

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/vampirenirmal/framesmith/internal/completion"
	"github.com/vampirenirmal/framesmith/internal/genapi"
	"github.com/vampirenirmal/framesmith/internal/ratelimit"
)

// RetryPolicy bounds attempts per request. MaxAttempts counts every attempt,
// the first included.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Delay is the wait before retry number n (1-based): base * 2^(n-1), capped.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(n-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// disposition says what to do after a failed attempt.
type disposition int

const (
	retry disposition = iota
	terminal
	// halt is terminal for the request and stops new requests for the run.
	halt
	aborted
)

func classify(ctx context.Context, err error) disposition {
	switch {
	case ctx.Err() != nil:
		return aborted
	case genapi.IsFatal(err), errors.Is(err, ratelimit.ErrQuotaExceeded):
		return halt
	case errors.Is(err, completion.ErrTimeout),
		errors.Is(err, genapi.ErrGenerationFailed),
		errors.Is(err, ratelimit.ErrRateLimited):
		return terminal
	case genapi.IsRetryable(err):
		return retry
	default:
		return terminal
	}
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
