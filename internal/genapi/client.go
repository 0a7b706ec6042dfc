// Package genapi is the HTTP client for the third-party generation API.
// It submits image and video jobs, reads job status and maps the API's
// error body onto typed errors. Retrying is left to the caller.
package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// APIKeyHeader carries the caller's key on every request.
const APIKeyHeader = "x-api-key"

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		transport := c.httpClient.Transport
		c.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit smooths outgoing calls. It is separate from the quota
// limiter, which counts generations rather than HTTP calls.
func WithRateLimit(requestsPerMinute int, burst int) Option {
	return func(c *Client) {
		if requestsPerMinute <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New validates the key and base URL up front so configuration mistakes
// surface before any network call.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	c := &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(1), 2),
		logger:  slog.Default().With("component", "genapi"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("generation client initialized",
		"base_url", c.baseURL,
		"rate_limit", fmt.Sprintf("%v req/s", c.limiter.Limit()))
	return c, nil
}

// GenerateImage submits an image job. The response may already be
// completed or may carry a UUID to await.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, ErrEmptyPrompt
	}
	return c.do(ctx, http.MethodPost, "/generate_image", req)
}

// GenerateVideo submits a video job. Videos always complete
// asynchronously.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, ErrEmptyPrompt
	}
	if req.FileURLs == nil {
		req.FileURLs = []string{}
	}
	return c.do(ctx, http.MethodPost, "/generate_video", req)
}

// Status reads the current state of a job.
func (c *Client) Status(ctx context.Context, uuid string) (Response, error) {
	return c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(uuid), nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (Response, error) {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit wait failed: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("sending generation API request",
		"method", method,
		"endpoint", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("generation API request failed",
			"endpoint", path,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return Response{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, respBody)
		c.logger.Warn("generation API error",
			"endpoint", path,
			"status_code", resp.StatusCode,
			"error_code", apiErr.Code,
			"message", apiErr.Message)
		return Response{}, apiErr
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Status == 0 {
		return Response{}, fmt.Errorf("%w: missing status", ErrMalformedResponse)
	}
	if !out.Status.Terminal() && out.UUID == "" {
		return Response{}, fmt.Errorf("%w: pending job without uuid", ErrMalformedResponse)
	}
	if out.Status == StatusCompleted && out.MediaURL() == "" {
		return Response{}, fmt.Errorf("%w: completed job without result", ErrMalformedResponse)
	}

	c.logger.Debug("generation API response",
		"endpoint", path,
		"uuid", out.UUID,
		"status", out.Status.String(),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = eb.Detail.ErrorCode
		apiErr.Message = eb.Detail.Message
	} else {
		// Some gateways answer with {"detail": "..."} or plain text.
		var loose struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &loose) == nil && loose.Detail != "" {
			apiErr.Message = loose.Detail
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
	}
	apiErr.Code = normalizeCode(apiErr.Code, status)
	return apiErr
}
