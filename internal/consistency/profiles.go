package consistency

import (
	"strings"
	"time"

	"github.com/vampirenirmal/framesmith/internal/analyzer"
)

// Kind distinguishes the two profile families.
type Kind string

const (
	KindCharacter   Kind = "character"
	KindEnvironment Kind = "environment"
)

type CharacterProfile struct {
	Name           string                   `json:"name"`
	Attributes     string                   `json:"attributes"`
	Seed           uint64                   `json:"seed"`
	MasterImageURL string                   `json:"master_image_url,omitempty"`
	Locked         bool                     `json:"locked"`
	Confidence     float64                  `json:"confidence"`
	Traits         analyzer.CharacterTraits `json:"traits"`
}

type EnvironmentProfile struct {
	Name           string                     `json:"name"`
	Category       string                     `json:"category"`
	Attributes     string                     `json:"attributes"`
	Description    string                     `json:"description"`
	Lighting       string                     `json:"lighting"`
	TimeOfDay      string                     `json:"time_of_day"`
	Weather        string                     `json:"weather"`
	Seed           uint64                     `json:"seed"`
	MasterImageURL string                     `json:"master_image_url,omitempty"`
	Locked         bool                       `json:"locked"`
	Traits         analyzer.EnvironmentTraits `json:"traits"`
}

// ProfileSet is the persisted consistency state for one session. Maps are
// keyed by normalized name; the order slices record registration order.
type ProfileSet struct {
	Characters        map[string]CharacterProfile   `json:"characters"`
	CharacterOrder    []string                      `json:"character_order"`
	Environments      map[string]EnvironmentProfile `json:"environments"`
	EnvironmentOrder  []string                      `json:"environment_order"`
	ActiveEnvironment string                        `json:"active_environment,omitempty"`
	AnalysisComplete  bool                          `json:"analysis_complete"`
	Locked            bool                          `json:"locked"`
	UpdatedAt         time.Time                     `json:"updated_at"`
}

func newProfileSet() ProfileSet {
	return ProfileSet{
		Characters:   make(map[string]CharacterProfile),
		Environments: make(map[string]EnvironmentProfile),
	}
}

func (p ProfileSet) clone() ProfileSet {
	out := ProfileSet{
		Characters:        make(map[string]CharacterProfile, len(p.Characters)),
		CharacterOrder:    append([]string(nil), p.CharacterOrder...),
		Environments:      make(map[string]EnvironmentProfile, len(p.Environments)),
		EnvironmentOrder:  append([]string(nil), p.EnvironmentOrder...),
		ActiveEnvironment: p.ActiveEnvironment,
		AnalysisComplete:  p.AnalysisComplete,
		Locked:            p.Locked,
		UpdatedAt:         p.UpdatedAt,
	}
	for k, v := range p.Characters {
		out.Characters[k] = v
	}
	for k, v := range p.Environments {
		out.Environments[k] = v
	}
	return out
}

// OrderedCharacters returns characters in registration order.
func (p ProfileSet) OrderedCharacters() []CharacterProfile {
	out := make([]CharacterProfile, 0, len(p.CharacterOrder))
	for _, key := range p.CharacterOrder {
		if c, ok := p.Characters[key]; ok {
			out = append(out, c)
		}
	}
	return out
}

// OrderedEnvironments returns environments in registration order.
func (p ProfileSet) OrderedEnvironments() []EnvironmentProfile {
	out := make([]EnvironmentProfile, 0, len(p.EnvironmentOrder))
	for _, key := range p.EnvironmentOrder {
		if e, ok := p.Environments[key]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Ref names one profile.
type Ref struct {
	Kind       Kind
	Name       string
	Attributes string
	Seed       uint64
}

// MissingMasterImages lists profiles that still need a master image, in
// registration order, characters first.
func (p ProfileSet) MissingMasterImages() []Ref {
	var out []Ref
	for _, c := range p.OrderedCharacters() {
		if c.MasterImageURL == "" {
			out = append(out, Ref{Kind: KindCharacter, Name: c.Name, Attributes: c.Attributes, Seed: c.Seed})
		}
	}
	for _, e := range p.OrderedEnvironments() {
		if e.MasterImageURL == "" {
			out = append(out, Ref{Kind: KindEnvironment, Name: e.Name, Attributes: e.Attributes, Seed: e.Seed})
		}
	}
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
