// Package analyzer extracts characters and environments from free-form
// script text with deterministic heuristics. It never fails and never calls
// out to the network: malformed or empty input degrades to defaults.
package analyzer

import (
	"log/slog"
	"strings"
)

// Character is one extracted person.
type Character struct {
	Name string `json:"name"`
	// Content is the synthesized attribute string used in prompts.
	Content     string          `json:"content"`
	Description string          `json:"description,omitempty"`
	Confidence  float64         `json:"confidence"`
	Source      string          `json:"source"`
	Traits      CharacterTraits `json:"traits"`
}

// Environment is one extracted location.
type Environment struct {
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Description string            `json:"description"`
	Lighting    string            `json:"lighting"`
	TimeOfDay   string            `json:"time_of_day"`
	Weather     string            `json:"weather"`
	Content     string            `json:"content"`
	Mentions    int               `json:"mentions"`
	Traits      EnvironmentTraits `json:"traits"`
}

// Result holds everything found in one script.
type Result struct {
	Characters   []Character   `json:"characters"`
	Environments []Environment `json:"environments"`
}

// Dominant returns the environment with the highest significance; ties go
// to the one seen first. Environments is never empty for an analyzed Result.
func (r Result) Dominant() Environment {
	if len(r.Environments) == 0 {
		return generalScene()
	}
	best := r.Environments[0]
	for _, e := range r.Environments[1:] {
		if e.Traits.Significance > best.Traits.Significance {
			best = e
		}
	}
	return best
}

// Thresholds tune admission of the weaker strategies.
type Thresholds struct {
	MinParentheticalLength int
	MinAttributionHits     int
	MinFrequency           int
	MinCityMentions        int
	MinCapitalizedMentions int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinParentheticalLength: 20,
		MinAttributionHits:     2,
		MinFrequency:           4,
		MinCityMentions:        2,
		MinCapitalizedMentions: 3,
	}
}

type Analyzer struct {
	thresholds Thresholds
	logger     *slog.Logger
}

type Option func(*Analyzer)

func WithThresholds(th Thresholds) Option {
	return func(a *Analyzer) {
		a.thresholds = th
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		thresholds: DefaultThresholds(),
		logger:     slog.Default().With("component", "analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze extracts characters and environments. Character names are kept
// out of the environment fallback so a frequently mentioned person is not
// mistaken for a place.
func (a *Analyzer) Analyze(text string) Result {
	chars := a.ExtractCharacters(text)
	names := make([]string, len(chars))
	for i, c := range chars {
		names[i] = c.Name
	}
	envs := extractEnvironments(text, names, a.thresholds)

	a.logger.Debug("script analyzed",
		"characters", len(chars),
		"environments", len(envs),
		"words", wordCount(text))

	return Result{Characters: chars, Environments: envs}
}

func (a *Analyzer) ExtractCharacters(text string) []Character {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var cands []candidate
	for _, s := range characterStrategies {
		found := s.find(text, a.thresholds)
		if len(found) > 0 {
			a.logger.Debug("character strategy matched", "strategy", s.name, "candidates", len(found))
		}
		cands = append(cands, found...)
	}

	sentences := splitSentences(text)
	merged := mergeCandidates(text, cands)
	out := make([]Character, 0, len(merged))
	for _, c := range merged {
		traits := extractTraits(c.name, sentencesMentioning(sentences, c.name))
		out = append(out, Character{
			Name:        c.name,
			Content:     characterContent(traits, c.description),
			Description: c.description,
			Confidence:  c.confidence,
			Source:      c.source,
			Traits:      traits,
		})
	}
	return out
}

// ExtractEnvironments always returns at least one environment.
func (a *Analyzer) ExtractEnvironments(text string) []Environment {
	return a.Analyze(text).Environments
}
