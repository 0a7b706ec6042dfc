// Package consistency keeps the character and environment profiles for a
// session and turns scene actions into prompts that pin those identities.
package consistency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vampirenirmal/framesmith/internal/analyzer"
	"github.com/vampirenirmal/framesmith/internal/identity"
	"github.com/vampirenirmal/framesmith/internal/storage"
)

// Repository persists the profile set.
type Repository interface {
	Load(ctx context.Context) (ProfileSet, error)
	Save(ctx context.Context, set ProfileSet) error
}

// TextAnalyzer extracts profiles from a script.
type TextAnalyzer interface {
	Analyze(text string) analyzer.Result
}

// Store is safe for concurrent use. Every mutation is persisted before it
// returns.
type Store struct {
	mu       sync.RWMutex
	set      ProfileSet
	repo     Repository
	analyzer TextAnalyzer
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore builds an empty store. A nil repo keeps profiles in memory and a
// nil analyzer uses the default heuristics.
func NewStore(repo Repository, an TextAnalyzer, opts ...Option) *Store {
	s := &Store{
		set:      newProfileSet(),
		repo:     repo,
		analyzer: an,
		now:      time.Now,
		logger:   slog.Default().With("component", "consistency"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.analyzer == nil {
		s.analyzer = analyzer.New(analyzer.WithLogger(s.logger))
	}
	return s
}

// Load replaces the in-memory set with the persisted one, if any.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	set, err := s.repo.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading profiles: %w", err)
	}
	if set.Characters == nil {
		set.Characters = make(map[string]CharacterProfile)
	}
	if set.Environments == nil {
		set.Environments = make(map[string]EnvironmentProfile)
	}

	s.mu.Lock()
	s.set = set
	s.mu.Unlock()

	s.logger.Debug("profiles restored",
		"characters", len(set.Characters),
		"environments", len(set.Environments),
		"locked", set.Locked)
	return nil
}

// Snapshot returns a deep copy of the current set.
func (s *Store) Snapshot() ProfileSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set.clone()
}

// Analyze runs the analyzer over script and replaces the profiles with the
// result. Master images survive re-analysis when the profile's seed is
// unchanged, since the seed pairs a textual identity with its image.
func (s *Store) Analyze(ctx context.Context, script string) (analyzer.Result, error) {
	res := s.analyzer.Analyze(script)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set.Locked {
		return res, ErrLocked
	}

	prev := s.set
	next := newProfileSet()
	for _, c := range res.Characters {
		key := normalize(c.Name)
		if _, dup := next.Characters[key]; dup {
			continue
		}
		p := CharacterProfile{
			Name:       c.Name,
			Attributes: c.Content,
			Seed:       identity.Seed(c.Name, c.Content),
			Confidence: c.Confidence,
			Traits:     c.Traits,
		}
		if old, ok := prev.Characters[key]; ok && old.Seed == p.Seed {
			p.MasterImageURL = old.MasterImageURL
		}
		next.Characters[key] = p
		next.CharacterOrder = append(next.CharacterOrder, key)
	}
	for _, e := range res.Environments {
		key := normalize(e.Name)
		if _, dup := next.Environments[key]; dup {
			continue
		}
		p := EnvironmentProfile{
			Name:        e.Name,
			Category:    e.Category,
			Attributes:  e.Content,
			Description: e.Description,
			Lighting:    e.Lighting,
			TimeOfDay:   e.TimeOfDay,
			Weather:     e.Weather,
			Seed:        identity.Seed(e.Name, e.Content),
			Traits:      e.Traits,
		}
		if old, ok := prev.Environments[key]; ok && old.Seed == p.Seed {
			p.MasterImageURL = old.MasterImageURL
		}
		next.Environments[key] = p
		next.EnvironmentOrder = append(next.EnvironmentOrder, key)
	}
	next.ActiveEnvironment = normalize(res.Dominant().Name)
	next.AnalysisComplete = true

	if err := s.commitLocked(ctx, next); err != nil {
		return res, err
	}

	s.logger.Info("script analyzed",
		"characters", len(next.CharacterOrder),
		"environments", len(next.EnvironmentOrder),
		"active_environment", next.ActiveEnvironment)
	return res, nil
}

// UpsertCharacter adds or edits a character by name. Editing attributes
// clears the master image, because the image no longer matches the seed.
func (s *Store) UpsertCharacter(ctx context.Context, name, attributes string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set.Locked {
		return ErrLocked
	}

	next := s.set.clone()
	key := normalize(name)
	p, exists := next.Characters[key]
	if !exists {
		next.CharacterOrder = append(next.CharacterOrder, key)
		p.Name = strings.TrimSpace(name)
		p.Confidence = 1
	}
	if p.Attributes != attributes {
		p.MasterImageURL = ""
	}
	p.Attributes = attributes
	p.Seed = identity.Seed(p.Name, attributes)
	next.Characters[key] = p

	return s.commitLocked(ctx, next)
}

// UpsertEnvironment adds or edits an environment by name.
func (s *Store) UpsertEnvironment(ctx context.Context, env EnvironmentProfile) error {
	if strings.TrimSpace(env.Name) == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set.Locked {
		return ErrLocked
	}

	next := s.set.clone()
	key := normalize(env.Name)
	old, exists := next.Environments[key]
	if !exists {
		next.EnvironmentOrder = append(next.EnvironmentOrder, key)
	}
	if env.Attributes == "" {
		env.Attributes = joinFields(env.Description, env.Lighting, env.TimeOfDay, env.Weather)
	}
	env.Name = strings.TrimSpace(env.Name)
	env.Seed = identity.Seed(env.Name, env.Attributes)
	env.Locked = false
	env.MasterImageURL = ""
	if exists && old.Seed == env.Seed {
		env.MasterImageURL = old.MasterImageURL
	}
	next.Environments[key] = env
	if next.ActiveEnvironment == "" {
		next.ActiveEnvironment = key
	}

	return s.commitLocked(ctx, next)
}

// SetMasterImage records the canonical image for a profile. It can be set
// only once per profile.
func (s *Store) SetMasterImage(ctx context.Context, kind Kind, name, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set.Locked {
		return ErrLocked
	}

	next := s.set.clone()
	key := normalize(name)
	switch kind {
	case KindCharacter:
		p, ok := next.Characters[key]
		if !ok {
			return fmt.Errorf("%w: character %q", ErrUnknownProfile, name)
		}
		if p.MasterImageURL != "" {
			return fmt.Errorf("%w: character %q", ErrMasterImageSet, name)
		}
		p.MasterImageURL = url
		next.Characters[key] = p
	case KindEnvironment:
		p, ok := next.Environments[key]
		if !ok {
			return fmt.Errorf("%w: environment %q", ErrUnknownProfile, name)
		}
		if p.MasterImageURL != "" {
			return fmt.Errorf("%w: environment %q", ErrMasterImageSet, name)
		}
		p.MasterImageURL = url
		next.Environments[key] = p
	default:
		return fmt.Errorf("unknown profile kind %q", kind)
	}

	if err := s.commitLocked(ctx, next); err != nil {
		return err
	}
	s.logger.Info("master image recorded", "kind", kind, "name", name)
	return nil
}

// Lock freezes the set. Every profile must have a master image first.
func (s *Store) Lock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set.Locked {
		return nil
	}
	if !s.set.AnalysisComplete {
		return ErrNotAnalyzed
	}
	if missing := s.set.MissingMasterImages(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = string(m.Kind) + " " + m.Name
		}
		return fmt.Errorf("%w: %s", ErrMissingMasterImage, strings.Join(names, ", "))
	}

	next := s.set.clone()
	for k, c := range next.Characters {
		c.Locked = true
		next.Characters[k] = c
	}
	for k, e := range next.Environments {
		e.Locked = true
		next.Environments[k] = e
	}
	next.Locked = true

	if err := s.commitLocked(ctx, next); err != nil {
		return err
	}
	s.logger.Info("profiles locked",
		"characters", len(next.Characters),
		"environments", len(next.Environments))
	return nil
}

// Clear empties an unlocked set.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set.Locked {
		return ErrLocked
	}
	return s.commitLocked(ctx, newProfileSet())
}

// Discard throws the whole set away, locked or not, and starts a new one.
// It is the explicit way out of a locked session.
func (s *Store) Discard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = newProfileSet()
	if s.repo == nil {
		return nil
	}
	if d, ok := s.repo.(interface{ Delete(context.Context) error }); ok {
		if err := d.Delete(ctx); err != nil {
			return fmt.Errorf("discarding profiles: %w", err)
		}
		return nil
	}
	return s.repo.Save(ctx, s.set)
}

// commitLocked persists next and makes it current. Callers hold s.mu.
func (s *Store) commitLocked(ctx context.Context, next ProfileSet) error {
	next.UpdatedAt = s.now()
	if s.repo != nil {
		if err := s.repo.Save(ctx, next); err != nil {
			return fmt.Errorf("saving profiles: %w", err)
		}
	}
	s.set = next
	return nil
}

// GenerationOptions carries session-local bookkeeping for a request. The
// seed is for display only and is never sent to the generation API.
type GenerationOptions struct {
	Name           string
	Seed           uint64
	MasterImageURL string
}

func (s *Store) ImageGenerationOptions(characterName string) GenerationOptions {
	return s.generationOptions(characterName)
}

func (s *Store) VideoGenerationOptions(characterName string) GenerationOptions {
	return s.generationOptions(characterName)
}

func (s *Store) generationOptions(characterName string) GenerationOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.set.selectCharacter(characterName)
	if !ok {
		return GenerationOptions{}
	}
	return GenerationOptions{Name: c.Name, Seed: c.Seed, MasterImageURL: c.MasterImageURL}
}

// MentionedCharacter returns the first registered character whose name
// appears in action, or "" when none does.
func (s *Store) MentionedCharacter(action string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lower := strings.ToLower(action)
	for _, key := range s.set.CharacterOrder {
		if c, ok := s.set.Characters[key]; ok && containsPhrase(lower, key) {
			return c.Name
		}
	}
	return ""
}

// selectCharacter prefers the named character and falls back to the first
// registered one.
func (p ProfileSet) selectCharacter(name string) (CharacterProfile, bool) {
	if c, ok := p.Characters[normalize(name)]; ok && name != "" {
		return c, true
	}
	for _, key := range p.CharacterOrder {
		if c, ok := p.Characters[key]; ok {
			return c, true
		}
	}
	return CharacterProfile{}, false
}

// selectEnvironment picks the environment named in the action, longest
// name first, and otherwise the active one.
func (p ProfileSet) selectEnvironment(action string) (EnvironmentProfile, bool) {
	lower := strings.ToLower(action)
	var (
		best  EnvironmentProfile
		found bool
	)
	for _, key := range p.EnvironmentOrder {
		e, ok := p.Environments[key]
		if !ok || !containsPhrase(lower, key) {
			continue
		}
		if !found || len(key) > len(normalize(best.Name)) {
			best, found = e, true
		}
	}
	if found {
		return best, true
	}
	if e, ok := p.Environments[p.ActiveEnvironment]; ok {
		return e, true
	}
	for _, key := range p.EnvironmentOrder {
		if e, ok := p.Environments[key]; ok {
			return e, true
		}
	}
	return EnvironmentProfile{}, false
}

func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(phrase)
		if (start == 0 || !isLetter(text[start-1])) && (end == len(text) || !isLetter(text[end])) {
			return true
		}
		offset = end
	}
	return false
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func joinFields(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
