package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vampirenirmal/framesmith/internal/completion"
	"github.com/vampirenirmal/framesmith/internal/genapi"
)

const (
	// GenerationPath receives completion pushes from the generation API.
	GenerationPath = "/webhooks/generation"
	HealthPath     = "/healthz"

	maxBodyBytes = 1 << 20
)

// Sink accepts completion results. *completion.Hub satisfies it.
type Sink interface {
	Deliver(r completion.Result) bool
}

// Receiver turns inbound pushes into completion results.
type Receiver struct {
	sink   Sink
	secret string
	logger *slog.Logger
	engine *gin.Engine
}

type ReceiverOption func(*Receiver)

// WithSecret enables signature verification of inbound pushes.
func WithSecret(secret string) ReceiverOption {
	return func(r *Receiver) {
		r.secret = secret
	}
}

func WithReceiverLogger(logger *slog.Logger) ReceiverOption {
	return func(r *Receiver) {
		r.logger = logger
	}
}

func NewReceiver(sink Sink, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		sink:   sink,
		logger: slog.Default().With("component", "webhook_receiver"),
	}
	for _, opt := range opts {
		opt(r)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), r.requestLogger())
	engine.GET(HealthPath, r.health)
	engine.POST(GenerationPath, r.generation)
	r.engine = engine
	return r
}

// Handler exposes the router for http.Server or httptest.
func (r *Receiver) Handler() http.Handler {
	return r.engine
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (r *Receiver) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("webhook receiver listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (r *Receiver) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.logger.Debug("webhook request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (r *Receiver) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(TimestampLayout),
	})
}

func (r *Receiver) generation(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if r.secret != "" && !Verify(r.secret, body, c.GetHeader(SignatureHeader)) {
		r.logger.Warn("rejected webhook with bad signature", "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var resp genapi.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if resp.UUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing uuid"})
		return
	}

	result := completion.FromResponse(resp, completion.SourceWebhook)
	taken := r.sink.Deliver(result)
	r.logger.Debug("webhook completion received",
		"uuid", resp.UUID,
		"status", resp.Status.String(),
		"waiter", taken,
	)
	c.JSON(http.StatusAccepted, gin.H{"uuid": resp.UUID, "accepted": true})
}
