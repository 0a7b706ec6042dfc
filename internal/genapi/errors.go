package genapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrMissingAPIKey     = errors.New("API key is not configured")
	ErrInvalidBaseURL    = errors.New("invalid API base URL")
	ErrEmptyPrompt       = errors.New("prompt is empty")
	ErrMalformedResponse = errors.New("malformed API response")
	// ErrGenerationFailed means the API accepted the job and then reported
	// it failed (status 3).
	ErrGenerationFailed = errors.New("generation failed")
)

// Error codes reported in {"detail":{"error_code": ...}}.
const (
	CodeMissingAPIKey      = "MISSING_API_KEY"
	CodeInvalidAPIKey      = "INVALID_API_KEY"
	CodeInsufficientCredit = "INSUFFICIENT_CREDIT"
	CodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	CodeContentPolicy      = "CONTENT_POLICY_VIOLATION"
	CodeInternal           = "INTERNAL_ERROR"
)

var friendlyMessages = map[string]string{
	CodeMissingAPIKey:      "No API key was sent. Add your API key in the settings and try again.",
	CodeInvalidAPIKey:      "The API key was rejected. Check that it is correct and still active.",
	CodeInsufficientCredit: "Not enough credits left on the account to run this generation.",
	CodeRateLimited:        "The generation service is rate limiting requests. Wait a moment and try again.",
	CodeContentPolicy:      "The prompt was blocked by the content safety filter. Rephrase it and try again.",
	CodeInternal:           "The generation service hit an internal error. Try again shortly.",
}

// APIError is a non-2xx response from the generation API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if msg, ok := friendlyMessages[e.Code]; ok {
		return msg
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("generation API returned status %d", e.StatusCode)
}

// normalizeCode maps loose error codes and bare HTTP statuses onto the
// known codes.
func normalizeCode(code string, status int) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch {
	case c == "":
	case strings.Contains(c, "MISSING") && strings.Contains(c, "KEY"):
		return CodeMissingAPIKey
	case strings.Contains(c, "KEY") || strings.Contains(c, "UNAUTHORIZED"):
		return CodeInvalidAPIKey
	case strings.Contains(c, "CREDIT") || strings.Contains(c, "BALANCE"):
		return CodeInsufficientCredit
	case strings.Contains(c, "RATE_LIMIT") || strings.Contains(c, "TOO_MANY"):
		return CodeRateLimited
	case strings.Contains(c, "CONTENT") || strings.Contains(c, "SAFETY") || strings.Contains(c, "NSFW"):
		return CodeContentPolicy
	case strings.Contains(c, "INTERNAL"):
		return CodeInternal
	default:
		return c
	}

	switch {
	case status == 401 || status == 403:
		return CodeInvalidAPIKey
	case status == 402:
		return CodeInsufficientCredit
	case status == 429:
		return CodeRateLimited
	case status >= 500:
		return CodeInternal
	}
	return ""
}

// IsRetryable reports whether resubmitting the same request may succeed:
// network failures and transport timeouts, malformed responses, server
// errors and API-side rate limiting. A deadline error is reported as
// retryable; callers tell their own expired context apart with ctx.Err().
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, ErrMalformedResponse) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == CodeInternal || apiErr.Code == CodeRateLimited || apiErr.StatusCode >= 500
	}
	return false
}

// IsFatal reports errors that make every further request pointless.
func IsFatal(err error) bool {
	if errors.Is(err, ErrMissingAPIKey) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == CodeMissingAPIKey || apiErr.Code == CodeInvalidAPIKey
	}
	return false
}
