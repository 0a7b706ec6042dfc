// Package webhook delivers signed outbound notifications about generation
// outcomes and receives inbound completion pushes from the generation API.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/vampirenirmal/framesmith/internal/events"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Webhook-Signature"

// TimestampLayout is RFC 3339 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrInvalidURL = errors.New("invalid webhook url")

// Payload is the outbound body.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Sign returns hex(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against body in constant time.
func Verify(secret string, body []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Notifier posts event payloads to a single configured URL.
type Notifier struct {
	url        string
	secret     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time
	pattern    string
}

type Option func(*Notifier)

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) {
		n.httpClient = c
	}
}

// WithRate paces deliveries to perMinute requests. Zero or less disables pacing.
func WithRate(perMinute int) Option {
	return func(n *Notifier) {
		if perMinute <= 0 {
			n.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		n.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithEvents restricts Attach to event types matching pattern.
func WithEvents(pattern string) Option {
	return func(n *Notifier) {
		n.pattern = pattern
	}
}

func withClock(now func() time.Time) Option {
	return func(n *Notifier) {
		n.now = now
	}
}

// NewNotifier validates rawURL and builds a notifier. An empty secret sends
// unsigned payloads.
func NewNotifier(rawURL, secret string, opts ...Option) (*Notifier, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	n := &Notifier{
		url:        u.String(),
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(1), 5),
		logger:     slog.Default().With("component", "webhook_notifier"),
		now:        time.Now,
		pattern:    events.PatternAll,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Encode renders the exact body Send posts.
func (n *Notifier) Encode(event string, data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(Payload{
		Event:     event,
		Timestamp: n.now().UTC().Format(TimestampLayout),
		Data:      data,
	})
}

// Send posts one event. Non-2xx responses are errors; the caller decides
// whether to log them.
func (n *Notifier) Send(ctx context.Context, event string, data map[string]any) error {
	body, err := n.Encode(event, data)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook %s: %w", event, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("deliver webhook %s: unexpected status %d", event, resp.StatusCode)
	}
	n.logger.Debug("webhook delivered", "event", event, "status", resp.StatusCode)
	return nil
}

// Attach subscribes the notifier to the outcome events it selects on bus. Delivery is
// asynchronous and failures are only logged, so generation never waits on
// or fails because of a webhook.
func (n *Notifier) Attach(bus *events.Bus) (*events.Subscription, error) {
	return bus.Subscribe(n.pattern, func(ctx context.Context, e events.Event) error {
		if err := n.Send(ctx, e.Type, e.Data); err != nil {
			n.logger.Warn("webhook delivery failed", "event", e.Type, "error", err)
		}
		return nil
	}, events.Options{Async: true, Timeout: 30 * time.Second})
}
