// Package scheduler turns script scenes into ordered image and video
// generation requests. Every request is gated by the rate limiter, wrapped
// with the consistency prompt, retried with backoff on transient failures
// and reconciled through the completion hub.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vampirenirmal/framesmith/internal/completion"
	"github.com/vampirenirmal/framesmith/internal/consistency"
	"github.com/vampirenirmal/framesmith/internal/events"
	"github.com/vampirenirmal/framesmith/internal/genapi"
	"github.com/vampirenirmal/framesmith/internal/script"
)

// Limiter hands out request slots. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Profiles is the consistency state the scheduler reads and, for identity
// images, writes. *consistency.Store satisfies it.
type Profiles interface {
	BuildConsistentPrompt(sceneAction, characterName string) string
	MentionedCharacter(action string) string
	ImageGenerationOptions(characterName string) consistency.GenerationOptions
	Snapshot() consistency.ProfileSet
	SetMasterImage(ctx context.Context, kind consistency.Kind, name, url string) error
	Lock(ctx context.Context) error
}

// Generator submits jobs. *genapi.Client satisfies it.
type Generator interface {
	GenerateImage(ctx context.Context, req genapi.ImageRequest) (genapi.Response, error)
	GenerateVideo(ctx context.Context, req genapi.VideoRequest) (genapi.Response, error)
}

// Completer waits for asynchronous jobs. *completion.Awaiter satisfies it.
type Completer interface {
	Await(ctx context.Context, uuid string) (completion.Result, error)
}

// Publisher receives outcome events. *events.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Deps are the collaborators of a Scheduler. Events and Tracker are
// optional.
type Deps struct {
	Limiter   Limiter
	Profiles  Profiles
	Generator Generator
	Completer Completer
	Events    Publisher
	Tracker   *Tracker
}

// MediaDefaults are sent with every request.
type MediaDefaults struct {
	ImageModel  string
	VideoModel  string
	AspectRatio string
	Resolution  string
	Style       string
	// WebhookURL asks the API to push completions to our receiver.
	WebhookURL string
}

type Option func(*Scheduler)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Scheduler) {
		s.retry = p
	}
}

// WithConcurrency sets how many paragraphs run at once. Scenes within a
// paragraph always run in order.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTransitions toggles transition clips between consecutive scenes.
func WithTransitions(enabled bool) Option {
	return func(s *Scheduler) {
		s.transitions = enabled
	}
}

func WithMediaDefaults(m MediaDefaults) Option {
	return func(s *Scheduler) {
		s.media = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

type Scheduler struct {
	limiter   Limiter
	profiles  Profiles
	generator Generator
	completer Completer
	events    Publisher
	tracker   *Tracker

	retry       RetryPolicy
	concurrency int
	transitions bool
	media       MediaDefaults
	logger      *slog.Logger

	stopped atomic.Bool
	haltMu  sync.Mutex
	haltErr error

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(deps Deps, opts ...Option) (*Scheduler, error) {
	switch {
	case deps.Limiter == nil:
		return nil, errors.New("scheduler: limiter is required")
	case deps.Profiles == nil:
		return nil, errors.New("scheduler: profiles are required")
	case deps.Generator == nil:
		return nil, errors.New("scheduler: generator is required")
	case deps.Completer == nil:
		return nil, errors.New("scheduler: completer is required")
	}

	s := &Scheduler{
		limiter:     deps.Limiter,
		profiles:    deps.Profiles,
		generator:   deps.Generator,
		completer:   deps.Completer,
		events:      deps.Events,
		tracker:     deps.Tracker,
		retry:       DefaultRetryPolicy(),
		concurrency: 1,
		transitions: true,
		logger:      slog.Default().With("component", "scheduler"),
		now:         time.Now,
		sleep:       sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry.MaxAttempts < 1 {
		s.retry.MaxAttempts = 1
	}
	if s.tracker == nil {
		s.tracker = NewTracker(nil, uuid.NewString())
	}
	return s, nil
}

// Stop prevents new requests. Requests already in flight finish normally.
func (s *Scheduler) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		s.logger.Info("scheduler stopping, no new requests will be issued")
	}
}

// Halted returns the error that halted scheduling, if any.
func (s *Scheduler) Halted() error {
	s.haltMu.Lock()
	defer s.haltMu.Unlock()
	return s.haltErr
}

func (s *Scheduler) halt(err error) {
	s.haltMu.Lock()
	defer s.haltMu.Unlock()
	if s.haltErr == nil {
		s.haltErr = err
		s.logger.Error("halting scheduling", "error", err)
	}
}

// gate reports why a new request must not start.
func (s *Scheduler) gate() error {
	if s.stopped.Load() {
		return ErrStopped
	}
	if err := s.Halted(); err != nil {
		return fmt.Errorf("%w: %v", ErrHalted, err)
	}
	return nil
}

// SceneResult holds the outcomes of one scene. Transition is nil for the
// first scene of a paragraph or when transitions are disabled.
type SceneResult struct {
	Scene      script.Scene `json:"scene"`
	StartFrame Outcome      `json:"start_frame"`
	EndFrame   Outcome      `json:"end_frame"`
	Video      Outcome      `json:"video"`
	Transition *Outcome     `json:"transition,omitempty"`
}

type ParagraphResult struct {
	Index  int           `json:"index"`
	Scenes []SceneResult `json:"scenes"`
	// Stitched lists completed clip URLs in playback order: scene,
	// transition, scene, and so on.
	Stitched []string `json:"stitched"`
}

// Report summarizes a run.
type Report struct {
	RunID      string            `json:"run_id"`
	Paragraphs []ParagraphResult `json:"paragraphs"`
	Completed  int               `json:"completed"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	Credits    int               `json:"credits"`
}

func (r *Report) count(o Outcome) {
	switch o.State {
	case StateCompleted:
		r.Completed++
		r.Credits += o.Credits
	case StateFailed:
		r.Failed++
	case StateSkipped:
		r.Skipped++
	}
}

// Run generates every scene of every paragraph. Paragraphs run with bounded
// concurrency. The error is non-nil only when ctx ends or scheduling was
// halted; individual request failures are reported in the Report.
func (s *Scheduler) Run(ctx context.Context, paragraphs []script.Paragraph) (Report, error) {
	report := Report{RunID: s.tracker.RunID(), Paragraphs: make([]ParagraphResult, len(paragraphs))}
	if err := s.tracker.SetTotal(ctx, s.plannedRequests(paragraphs)); err != nil {
		s.logger.Warn("failed to persist progress", "error", err)
	}

	start := s.now()
	s.logger.Info("run starting",
		"run_id", report.RunID,
		"paragraphs", len(paragraphs),
		"concurrency", s.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range paragraphs {
		i, p := i, p
		g.Go(func() error {
			report.Paragraphs[i] = s.runParagraph(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	clips := 0
	for _, p := range report.Paragraphs {
		clips += len(p.Stitched)
		for _, sr := range p.Scenes {
			report.count(sr.StartFrame)
			report.count(sr.EndFrame)
			report.count(sr.Video)
			if sr.Transition != nil {
				report.count(*sr.Transition)
			}
		}
	}

	s.logger.Info("run finished",
		"run_id", report.RunID,
		"completed", report.Completed,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"credits", report.Credits,
		"duration_ms", s.now().Sub(start).Milliseconds())

	s.publish(context.WithoutCancel(ctx), events.TypeAllCompleted, map[string]any{
		"run_id":    report.RunID,
		"completed": report.Completed,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
		"credits":   report.Credits,
		"clips":     clips,
	})

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if err := s.Halted(); err != nil {
		return report, fmt.Errorf("%w: %w", ErrHalted, err)
	}
	return report, nil
}

func (s *Scheduler) plannedRequests(paragraphs []script.Paragraph) int {
	n := 0
	for _, p := range paragraphs {
		n += 3 * len(p.Scenes)
		if s.transitions && len(p.Scenes) > 1 {
			n += len(p.Scenes) - 1
		}
	}
	return n
}

func (s *Scheduler) runParagraph(ctx context.Context, p script.Paragraph) ParagraphResult {
	pr := ParagraphResult{Index: p.Index, Scenes: make([]SceneResult, 0, len(p.Scenes))}
	var prev *SceneResult
	for _, scene := range p.Scenes {
		sr := s.runScene(ctx, scene, prev)
		pr.Scenes = append(pr.Scenes, sr)
		prev = &sr
	}
	pr.Stitched = stitch(pr.Scenes)
	return pr
}

func (s *Scheduler) runScene(ctx context.Context, scene script.Scene, prev *SceneResult) SceneResult {
	character := s.profiles.MentionedCharacter(scene.Action)
	master := s.profiles.ImageGenerationOptions(character).MasterImageURL

	sr := SceneResult{Scene: scene}
	sr.StartFrame = s.execute(ctx, s.sceneRequest(scene, KindStartFrame, scene.StartPrompt(), character, urls(master)))

	endRefs := urls(master)
	if sr.StartFrame.OK() {
		endRefs = urls(sr.StartFrame.MediaURL)
	}
	sr.EndFrame = s.execute(ctx, s.sceneRequest(scene, KindEndFrame, scene.EndPrompt(), character, endRefs))

	videoReq := s.sceneRequest(scene, KindSceneVideo, scene.VideoPrompt(), character, urls(sr.StartFrame.MediaURL))
	if sr.StartFrame.OK() {
		sr.Video = s.execute(ctx, videoReq)
	} else {
		sr.Video = s.skip(ctx, videoReq, "start frame "+string(sr.StartFrame.State))
	}

	if prev != nil && s.transitions {
		req := s.sceneRequest(scene, KindTransitionVideo, scene.TransitionPrompt(prev.Scene), character,
			urls(prev.EndFrame.MediaURL, sr.StartFrame.MediaURL))
		var o Outcome
		switch {
		case !prev.EndFrame.OK():
			o = s.skip(ctx, req, "previous end frame "+string(prev.EndFrame.State))
		case !sr.StartFrame.OK():
			o = s.skip(ctx, req, "start frame "+string(sr.StartFrame.State))
		default:
			o = s.execute(ctx, req)
		}
		sr.Transition = &o
	}
	return sr
}

func stitch(scenes []SceneResult) []string {
	var out []string
	for _, sr := range scenes {
		if sr.Transition != nil && sr.Transition.OK() {
			out = append(out, sr.Transition.MediaURL)
		}
		if sr.Video.OK() {
			out = append(out, sr.Video.MediaURL)
		}
	}
	return out
}

func (s *Scheduler) sceneRequest(scene script.Scene, kind Kind, action, character string, refs []string) Request {
	return Request{
		ID:        uuid.NewString(),
		Key:       requestKey(scene.ID, kind),
		Kind:      kind,
		SceneID:   scene.ID,
		Action:    action,
		Character: character,
		FileURLs:  refs,
	}
}

func urls(in ...string) []string {
	var out []string
	for _, u := range in {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

func (s *Scheduler) skip(ctx context.Context, req Request, reason string) Outcome {
	if o, ok := s.tracker.Completed(req.Key); ok {
		return o
	}
	o := failedOutcome(req, StateSkipped, 0, fmt.Errorf("%w: %s", ErrSkipped, reason), s.now())
	s.logger.Info("request skipped", "request_id", req.ID, "key", req.Key, "reason", reason)
	s.record(ctx, o)
	return o
}

// execute runs req to a terminal outcome.
func (s *Scheduler) execute(ctx context.Context, req Request) Outcome {
	if o, ok := s.tracker.Completed(req.Key); ok {
		s.logger.Debug("reusing completed request", "key", req.Key, "media_url", o.MediaURL)
		return o
	}
	if err := s.gate(); err != nil {
		o := failedOutcome(req, StateSkipped, 0, err, s.now())
		s.record(ctx, o)
		return o
	}

	var (
		lastErr  error
		attempts int
	)
loop:
	for attempts < s.retry.MaxAttempts {
		attempts++
		if attempts > 1 {
			delay := s.retry.Delay(attempts - 1)
			s.logger.Info("retrying request",
				"request_id", req.ID,
				"key", req.Key,
				"attempt", attempts,
				"delay_ms", delay.Milliseconds(),
				"error", lastErr)
			if err := s.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		started := s.now()
		result, err := s.attempt(ctx, req)
		if err == nil {
			o := completedOutcome(req, result, attempts, s.now())
			s.logger.Info("request completed",
				"request_id", req.ID,
				"key", req.Key,
				"uuid", result.UUID,
				"attempt", attempts,
				"source", result.Source,
				"duration_ms", s.now().Sub(started).Milliseconds())
			s.finish(ctx, req, o)
			return o
		}
		lastErr = err

		switch classify(ctx, err) {
		case retry:
			continue
		case halt:
			s.halt(err)
		}
		break loop
	}

	reqErr := &RequestError{Key: req.Key, Kind: req.Kind, Attempts: attempts, Err: lastErr}
	s.logger.Error("request failed",
		"request_id", req.ID,
		"key", req.Key,
		"attempts", attempts,
		"error", lastErr)
	o := failedOutcome(req, StateFailed, attempts, reqErr, s.now())
	s.finish(ctx, req, o)
	return o
}

// attempt is a single try: slot, prompt, submit, completion.
func (s *Scheduler) attempt(ctx context.Context, req Request) (completion.Result, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return completion.Result{}, fmt.Errorf("acquire request slot: %w", err)
	}

	prompt := req.Action
	if !req.RawPrompt {
		prompt = s.profiles.BuildConsistentPrompt(req.Action, req.Character)
	}

	resp, err := s.submit(ctx, req, prompt)
	if err != nil {
		return completion.Result{}, err
	}

	result := completion.FromResponse(resp, completion.SourceSync)
	if !resp.Status.Terminal() {
		s.logger.Debug("awaiting completion", "request_id", req.ID, "uuid", resp.UUID)
		result, err = s.completer.Await(ctx, resp.UUID)
		if err != nil {
			return completion.Result{}, err
		}
		if result.Credits == 0 {
			result.Credits = resp.Credits
		}
	}
	if err := result.Err(); err != nil {
		return result, err
	}
	if result.MediaURL == "" {
		return result, fmt.Errorf("%w: job %s completed without media", genapi.ErrMalformedResponse, result.UUID)
	}
	return result, nil
}

func (s *Scheduler) submit(ctx context.Context, req Request, prompt string) (genapi.Response, error) {
	if req.Kind.IsVideo() {
		refs := req.FileURLs
		if refs == nil {
			refs = []string{}
		}
		return s.generator.GenerateVideo(ctx, genapi.VideoRequest{
			Prompt:      prompt,
			Model:       s.media.VideoModel,
			Resolution:  s.media.Resolution,
			AspectRatio: s.media.AspectRatio,
			FileURLs:    refs,
			WebhookURL:  s.media.WebhookURL,
		})
	}
	return s.generator.GenerateImage(ctx, genapi.ImageRequest{
		Prompt:      prompt,
		Model:       s.media.ImageModel,
		AspectRatio: s.media.AspectRatio,
		Style:       s.media.Style,
		FileURLs:    req.FileURLs,
		WebhookURL:  s.media.WebhookURL,
	})
}

func (s *Scheduler) finish(ctx context.Context, req Request, o Outcome) {
	s.record(ctx, o)

	typ := events.TypeImageCompleted
	switch {
	case req.Kind.IsVideo() && o.OK():
		typ = events.TypeVideoCompleted
	case req.Kind.IsVideo():
		typ = events.TypeVideoFailed
	case !o.OK():
		typ = events.TypeImageFailed
	}
	data := map[string]any{
		"request_id": req.ID,
		"key":        req.Key,
		"kind":       string(req.Kind),
		"attempts":   o.Attempts,
	}
	if req.SceneID != "" {
		data["scene_id"] = req.SceneID
	}
	if o.UUID != "" {
		data["uuid"] = o.UUID
	}
	if o.OK() {
		data["media_url"] = o.MediaURL
		data["credits"] = o.Credits
	} else {
		data["error"] = o.Error
	}
	s.publish(context.WithoutCancel(ctx), typ, data)
}

func (s *Scheduler) record(ctx context.Context, o Outcome) {
	if err := s.tracker.Record(context.WithoutCancel(ctx), o); err != nil {
		s.logger.Warn("failed to persist progress", "key", o.Key, "error", err)
	}
}

func (s *Scheduler) publish(ctx context.Context, typ string, data map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, events.Event{Type: typ, Source: "scheduler", Data: data}); err != nil {
		s.logger.Warn("failed to publish event", "event_type", typ, "error", err)
	}
}

// IdentityReport lists the identity images a GenerateIdentities call made.
type IdentityReport struct {
	Outcomes []Outcome `json:"outcomes"`
	Locked   bool      `json:"locked"`
}

// GenerateIdentities creates a master image for every profile that lacks
// one, then locks the profile set once none is missing.
func (s *Scheduler) GenerateIdentities(ctx context.Context) (IdentityReport, error) {
	var report IdentityReport
	set := s.profiles.Snapshot()
	if !set.AnalysisComplete {
		return report, consistency.ErrNotAnalyzed
	}
	if set.Locked {
		report.Locked = true
		return report, nil
	}

	for _, ref := range set.MissingMasterImages() {
		req := Request{
			ID:        uuid.NewString(),
			Key:       identityKey(ref),
			Kind:      KindIdentityImage,
			Action:    identityPrompt(ref),
			RawPrompt: true,
		}
		if ref.Kind == consistency.KindCharacter {
			req.Character = ref.Name
		}
		o := s.execute(ctx, req)
		report.Outcomes = append(report.Outcomes, o)
		if !o.OK() {
			continue
		}
		if err := s.profiles.SetMasterImage(ctx, ref.Kind, ref.Name, o.MediaURL); err != nil {
			return report, fmt.Errorf("storing master image for %s: %w", ref.Name, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if missing := s.profiles.Snapshot().MissingMasterImages(); len(missing) > 0 {
		s.logger.Warn("profiles still missing master images", "count", len(missing))
		if err := s.Halted(); err != nil {
			return report, fmt.Errorf("%w: %w", ErrHalted, err)
		}
		return report, nil
	}
	if err := s.profiles.Lock(ctx); err != nil {
		return report, fmt.Errorf("locking profiles: %w", err)
	}
	report.Locked = true
	return report, nil
}

// identityKey includes the seed so an identity image is only reused while
// the profile it was generated from is unchanged.
func identityKey(ref consistency.Ref) string {
	return fmt.Sprintf("identity/%s/%s/%d", ref.Kind, strings.ToLower(strings.TrimSpace(ref.Name)), ref.Seed)
}

func identityPrompt(ref consistency.Ref) string {
	if ref.Kind == consistency.KindEnvironment {
		return fmt.Sprintf("Establishing shot of %s, no people, even framing: %s", ref.Name, ref.Attributes)
	}
	return fmt.Sprintf("Character reference portrait of %s, front facing, neutral background: %s", ref.Name, ref.Attributes)
}
