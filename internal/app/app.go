// Package app wires the configured components into a session. A session is
// created once per CLI invocation, used, and closed.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vampirenirmal/framesmith/internal/completion"
	"github.com/vampirenirmal/framesmith/internal/config"
	"github.com/vampirenirmal/framesmith/internal/consistency"
	"github.com/vampirenirmal/framesmith/internal/events"
	"github.com/vampirenirmal/framesmith/internal/genapi"
	"github.com/vampirenirmal/framesmith/internal/ratelimit"
	"github.com/vampirenirmal/framesmith/internal/scheduler"
	"github.com/vampirenirmal/framesmith/internal/storage"
	"github.com/vampirenirmal/framesmith/internal/webhook"
)

// sweepInterval is how often stale limiter windows are pruned.
const sweepInterval = time.Minute

// Keys under which session state is persisted.
const (
	keyRateLimit = "ratelimit/state"
	keyProfiles  = "consistency/profiles"
	secretAPIKey = "api_key"
	keyProgress  = "progress"
)

var ErrNotifyDisabled = errors.New("outbound webhooks are not configured (notify.url)")

// Session owns every long-lived component for one invocation.
type Session struct {
	Config   *config.Config
	Store    storage.Store
	Secrets  *storage.SecretBox
	Limiter  *ratelimit.Limiter
	Profiles *consistency.Store
	Bus      *events.Bus
	Hub      *completion.Hub
	Receiver *webhook.Receiver
	// Notifier is nil unless notify.url is set.
	Notifier *webhook.Notifier

	logger *slog.Logger

	mu     sync.Mutex
	client *genapi.Client
	wg     sync.WaitGroup
	stop   context.CancelFunc

	stopSweep context.CancelFunc
	swept     <-chan struct{}
}

type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithStore replaces the configured storage backend.
func WithStore(store storage.Store) Option {
	return func(s *Session) {
		s.Store = store
	}
}

// New opens storage and builds every component that does not need the API
// key. The API client is created on first use.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	s := &Session{
		Config: cfg,
		logger: slog.Default().With("component", "session"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.Store == nil {
		store, err := storage.Open(ctx, storage.Options{
			Backend:       cfg.Storage.Backend,
			Dir:           cfg.Storage.Dir,
			RedisAddr:     cfg.Storage.RedisAddr,
			RedisPassword: cfg.Storage.RedisPassword,
			RedisDB:       cfg.Storage.RedisDB,
			MongoURI:      cfg.Storage.MongoURI,
			MongoDatabase: cfg.Storage.MongoDatabase,
		})
		if err != nil {
			return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
		}
		s.Store = store
	}

	if err := s.build(ctx); err != nil {
		_ = s.Store.Close()
		return nil, err
	}

	sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopSweep = cancel
	s.swept = s.Limiter.StartCleanup(sweepCtx, sweepInterval)
	return s, nil
}

func (s *Session) build(ctx context.Context) error {
	cfg := s.Config

	secrets, err := storage.NewSecretBox(s.Store, storage.MachinePassphrase())
	if err != nil {
		return fmt.Errorf("initializing secret store: %w", err)
	}
	s.Secrets = secrets

	limits := ratelimit.Limits{
		PerMinute: cfg.Limits.PerMinute,
		PerHour:   cfg.Limits.PerHour,
		PerDay:    cfg.Limits.PerDay,
		MaxTotal:  cfg.Limits.MaxTotal,
	}
	s.Limiter, err = ratelimit.New(ctx, limits, storage.NewRepository[ratelimit.State](s.Store, keyRateLimit))
	if err != nil {
		return fmt.Errorf("loading rate limiter: %w", err)
	}

	s.Profiles = consistency.NewStore(storage.NewRepository[consistency.ProfileSet](s.Store, keyProfiles), nil)
	if err := s.Profiles.Load(ctx); err != nil {
		return fmt.Errorf("loading profiles: %w", err)
	}

	s.Bus = events.New(nil)
	s.Hub = completion.NewHub()
	s.Receiver = webhook.NewReceiver(s.Hub, webhook.WithSecret(cfg.Completion.CallbackSecret))

	if cfg.Notify.Enabled() {
		pattern, err := events.PatternFor(cfg.Notify.Events)
		if err != nil {
			return err
		}
		n, err := webhook.NewNotifier(cfg.Notify.URL, cfg.Notify.Secret,
			webhook.WithRate(cfg.Notify.RequestsPerMinute),
			webhook.WithEvents(pattern),
		)
		if err != nil {
			return err
		}
		if _, err := n.Attach(s.Bus); err != nil {
			return fmt.Errorf("attaching webhook notifier: %w", err)
		}
		s.Notifier = n
	}
	return nil
}

// APIKey resolves the key from configuration, then the encrypted store.
func (s *Session) APIKey(ctx context.Context) (string, error) {
	if s.Config.API.APIKey != "" {
		return s.Config.API.APIKey, nil
	}
	key, err := s.Secrets.Get(ctx, secretAPIKey)
	if errors.Is(err, storage.ErrNotFound) {
		return "", genapi.ErrMissingAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("reading stored API key: %w", err)
	}
	return key, nil
}

// SetAPIKey stores key encrypted at rest.
func (s *Session) SetAPIKey(ctx context.Context, key string) error {
	if key == "" {
		return genapi.ErrMissingAPIKey
	}
	if err := s.Secrets.Put(ctx, secretAPIKey, key); err != nil {
		return fmt.Errorf("storing API key: %w", err)
	}
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
	return nil
}

// ClearAPIKey removes the stored key. A key set in configuration is
// unaffected.
func (s *Session) ClearAPIKey(ctx context.Context) error {
	if err := s.Secrets.Delete(ctx, secretAPIKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("removing API key: %w", err)
	}
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
	return nil
}

// Client returns the API client, creating it on first use.
func (s *Session) Client(ctx context.Context) (*genapi.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	key, err := s.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	c, err := genapi.New(key, s.Config.API.BaseURL,
		genapi.WithTimeout(s.Config.API.Timeout),
		genapi.WithRateLimit(s.Config.API.RequestsPerMinute, 1),
	)
	if err != nil {
		return nil, err
	}
	s.client = c
	return c, nil
}

// RunID derives a stable run identifier from the script, so running the
// same script again resumes it.
func RunID(src string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("framesmith:"+src)).String()
}

// Tracker loads the progress of runID from wherever an earlier session
// stored it. A new run is keyed by storage.run_naming, with title feeding
// the descriptive name.
func (s *Session) Tracker(ctx context.Context, runID, title string) (*scheduler.Tracker, error) {
	prefix, err := s.runPrefix(ctx, runID, title)
	if err != nil {
		return nil, err
	}
	tracker := scheduler.NewTracker(progressRepo(s.Store, prefix), runID)
	if err := tracker.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading progress for run %s: %w", runID, err)
	}
	return tracker, nil
}

func (s *Session) runPrefix(ctx context.Context, runID, title string) (string, error) {
	candidates, err := storage.RunCandidates(ctx, s.Store, runID)
	if err != nil {
		return "", err
	}
	for _, prefix := range candidates {
		p, err := progressRepo(s.Store, prefix).Load(ctx)
		if err == nil && p.RunID == runID {
			return prefix, nil
		}
	}
	strategy := storage.ParseRunNaming(s.Config.Storage.RunNaming)
	return storage.RunKey(runID, title, strategy, time.Now()), nil
}

func progressRepo(store storage.Store, prefix string) *storage.Repository[scheduler.Progress] {
	return storage.NewRepository[scheduler.Progress](store, path.Join(prefix, keyProgress))
}

// RunSummary describes one stored run.
type RunSummary struct {
	Key   string
	RunID string
	Stats scheduler.Stats
}

// Runs lists every stored run, most recently updated first.
func (s *Session) Runs(ctx context.Context) ([]RunSummary, error) {
	prefixes, err := storage.ListRuns(ctx, s.Store)
	if err != nil {
		return nil, err
	}
	var out []RunSummary
	for _, prefix := range prefixes {
		tracker := scheduler.NewTracker(progressRepo(s.Store, prefix), "")
		if err := tracker.Load(ctx); err != nil {
			s.logger.Warn("skipping unreadable run", "key", prefix, "error", err)
			continue
		}
		if tracker.RunID() == "" {
			continue
		}
		out = append(out, RunSummary{Key: prefix, RunID: tracker.RunID(), Stats: tracker.Stats()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Stats.LastUpdate.After(out[j].Stats.LastUpdate)
	})
	return out, nil
}

// Scheduler builds a scheduler whose progress is stored for runID.
func (s *Session) Scheduler(ctx context.Context, runID, title string) (*scheduler.Scheduler, *scheduler.Tracker, error) {
	client, err := s.Client(ctx)
	if err != nil {
		return nil, nil, err
	}
	cfg := s.Config

	poller := completion.NewPoller(client, s.Hub,
		completion.WithInterval(cfg.Completion.PollInterval),
		completion.WithMaxAttempts(cfg.Completion.MaxPolls),
	)
	mode := completion.Mode(cfg.Completion.Mode)
	awaiter := completion.NewAwaiter(s.Hub, poller, mode, cfg.Completion.Timeout)

	tracker, err := s.Tracker(ctx, runID, title)
	if err != nil {
		return nil, nil, err
	}

	media := scheduler.MediaDefaults{
		ImageModel:  cfg.API.ImageModel,
		VideoModel:  cfg.API.VideoModel,
		AspectRatio: cfg.API.AspectRatio,
		Resolution:  cfg.API.Resolution,
		Style:       cfg.API.Style,
	}
	if mode != completion.ModePoll {
		media.WebhookURL = cfg.Completion.CallbackURL
	}

	sched, err := scheduler.New(scheduler.Deps{
		Limiter:   s.Limiter,
		Profiles:  s.Profiles,
		Generator: client,
		Completer: awaiter,
		Events:    s.Bus,
		Tracker:   tracker,
	},
		scheduler.WithRetryPolicy(scheduler.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		}),
		scheduler.WithConcurrency(cfg.Scheduler.ParagraphConcurrency),
		scheduler.WithTransitions(cfg.Scheduler.Transitions),
		scheduler.WithMediaDefaults(media),
	)
	if err != nil {
		return nil, nil, err
	}
	return sched, tracker, nil
}

// StartReceiver serves inbound completion webhooks in the background when
// the completion mode accepts them. It is a no-op in poll mode.
func (s *Session) StartReceiver(ctx context.Context) {
	if completion.Mode(s.Config.Completion.Mode) == completion.ModePoll {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Receiver.ListenAndServe(ctx, s.Config.Completion.ListenAddr); err != nil {
			s.logger.Error("webhook receiver stopped", "error", err)
		}
	}()
}

// TestWebhook sends a signed webhook.test event synchronously.
func (s *Session) TestWebhook(ctx context.Context) error {
	if s.Notifier == nil {
		return ErrNotifyDisabled
	}
	return s.Notifier.Send(ctx, events.TypeWebhookTest, map[string]any{"test": true})
}

// Close stops background work, drains pending notifications and closes
// storage.
func (s *Session) Close() error {
	if s.stop != nil {
		s.stop()
	}
	s.wg.Wait()
	if s.stopSweep != nil {
		s.stopSweep()
		<-s.swept
	}
	if s.Bus != nil {
		s.Bus.Stop()
		m := s.Bus.Metrics()
		s.logger.Debug("event bus drained",
			"published", m.Published,
			"delivered", m.Delivered,
			"failed", m.Failed)
	}
	return s.Store.Close()
}
