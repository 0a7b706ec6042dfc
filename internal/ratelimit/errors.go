package ratelimit

import (
	"errors"
	"fmt"
)

// Reason names why a request was blocked.
type Reason string

const (
	ReasonQuotaExceeded Reason = "quota_exceeded"
	ReasonMinute        Reason = "rate_limit_minute"
	ReasonHour          Reason = "rate_limit_hour"
	ReasonDay           Reason = "rate_limit_day"
)

var (
	// ErrQuotaExceeded is terminal for the session; only Reset clears it.
	ErrQuotaExceeded = errors.New("lifetime request quota exceeded")
	// ErrRateLimited covers the hour and day windows, which clear by waiting.
	ErrRateLimited = errors.New("request rate limit reached")
)

// Decision is the result of CanMakeRequest. WaitTime is only set for the
// minute window, in whole seconds.
type Decision struct {
	Allowed  bool
	Reason   Reason
	WaitTime int
}

// BlockedError is returned by Acquire for blocks it does not wait out.
type BlockedError struct {
	Reason   Reason
	WaitTime int
}

func (e *BlockedError) Error() string {
	switch e.Reason {
	case ReasonQuotaExceeded:
		return "request quota exhausted for this account; reset the quota or upgrade the plan"
	case ReasonHour:
		return "hourly request limit reached; try again later"
	case ReasonDay:
		return "daily request limit reached; try again tomorrow"
	default:
		return fmt.Sprintf("request blocked: %s", e.Reason)
	}
}

func (e *BlockedError) Unwrap() error {
	if e.Reason == ReasonQuotaExceeded {
		return ErrQuotaExceeded
	}
	return ErrRateLimited
}

// Recoverable reports whether waiting can clear the block.
func (e *BlockedError) Recoverable() bool {
	return e.Reason != ReasonQuotaExceeded
}
