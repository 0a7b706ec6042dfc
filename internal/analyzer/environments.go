package analyzer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// EnvironmentTraits are derived from the sentences mentioning a location.
type EnvironmentTraits struct {
	SettingType  string   `json:"setting_type"`
	Size         string   `json:"size,omitempty"`
	Lighting     string   `json:"lighting,omitempty"`
	Weather      string   `json:"weather,omitempty"`
	TimeOfDay    string   `json:"time_of_day,omitempty"`
	Season       string   `json:"season,omitempty"`
	Colors       []string `json:"colors,omitempty"`
	Atmosphere   []string `json:"atmosphere,omitempty"`
	Sounds       []string `json:"sounds,omitempty"`
	Mood         string   `json:"mood,omitempty"`
	Activities   []string `json:"activities,omitempty"`
	Significance int      `json:"significance"`
}

const (
	categoryLandmark = "landmark"
	categoryCity     = "city"
	categoryGeneral  = "general"

	maxPhraseWords = 4
	// How many tokens after a location preposition still count as "near".
	prepositionWindow = 3
)

var (
	phraseLeadRe = regexp.MustCompile(`(?i)\b(?:in|at|on|into|inside|near|through|to|towards|toward|outside|across|from|within|of|by|behind|beside|past|around|onto|under)\s+the\s+`)

	indoorMatcher     = newWordMatcher(indoorKeywords, false)
	outdoorMatcher    = newWordMatcher(outdoorKeywords, false)
	sizeMatcher       = newWordMatcher(sizeWords, false)
	lightingMatcher   = newWordMatcher(lightingPhrases, false)
	weatherMatcher    = newWordMatcher(weatherPhrases, false)
	seasonMatcher     = newWordMatcher(seasonWords, false)
	colorMatcher      = newWordMatcher(colorWords, false)
	atmosphereMatcher = newWordMatcher(atmosphereWords, false)
	soundMatcher      = newWordMatcher(soundWords, false)
	moodMatcher       = newWordMatcher(moodWords, false)
	activityMatcher   = newWordMatcher(activityWords, false)
	timeMatchers      = buildTimeMatchers()
	locationMatchers  = buildLocationMatchers()
)

func buildTimeMatchers() []*wordMatcher {
	out := make([]*wordMatcher, len(timeBuckets))
	for i, b := range timeBuckets {
		out[i] = newWordMatcher(b.words, false)
	}
	return out
}

type locationMatcher struct {
	word     string
	category string
	m        *wordMatcher
}

func buildLocationMatchers() []locationMatcher {
	var out []locationMatcher
	for _, c := range locationCategories {
		for _, w := range c.words {
			if locationIndex[w] != c.name {
				continue
			}
			out = append(out, locationMatcher{word: w, category: c.name, m: newWordMatcher([]string{w}, true)})
		}
	}
	return out
}

// envCandidate accumulates one location while the extractors run.
type envCandidate struct {
	name     string
	category string
	pos      int
	mentions int
	// head is the vocabulary word a phrase was anchored on, if any.
	head string
}

type envSet struct {
	items []*envCandidate
	byKey map[string]*envCandidate
}

func newEnvSet() *envSet {
	return &envSet{byKey: make(map[string]*envCandidate)}
}

func (s *envSet) add(c envCandidate) {
	key := strings.ToLower(c.name)
	if existing, ok := s.byKey[key]; ok {
		if c.pos < existing.pos {
			existing.pos = c.pos
		}
		return
	}
	cp := c
	s.items = append(s.items, &cp)
	s.byKey[key] = &cp
}

// covers reports whether an existing location name already contains word.
func (s *envSet) covers(word string) bool {
	for _, it := range s.items {
		if indexWord(it.name, word, true) >= 0 {
			return true
		}
		if it.head != "" && strings.EqualFold(it.head, word) {
			return true
		}
	}
	return false
}

func (s *envSet) has(name string) bool {
	_, ok := s.byKey[strings.ToLower(name)]
	return ok
}

// extractEnvironments runs the location extractors in a fixed order,
// enriches each hit and falls back to the general scene.
func extractEnvironments(text string, characterNames []string, th Thresholds) []Environment {
	set := newEnvSet()
	phraseEnvironments(text, set)
	vocabularyEnvironments(text, set)
	cityEnvironments(text, set, th)
	capitalizedEnvironments(text, set, characterNames, th)

	if len(set.items) == 0 {
		return []Environment{generalScene()}
	}

	sort.SliceStable(set.items, func(i, j int) bool {
		return set.items[i].pos < set.items[j].pos
	})

	sentences := splitSentences(text)
	words := wordCount(text)
	out := make([]Environment, 0, len(set.items))
	for _, c := range set.items {
		out = append(out, enrichEnvironment(c, text, sentences, words))
	}
	return out
}

// phraseEnvironments captures "in the X" style phrases whose head is a
// known location noun, or a capitalized proper name.
func phraseEnvironments(text string, set *envSet) {
	for _, loc := range phraseLeadRe.FindAllStringIndex(text, -1) {
		toks := leadingWords(text[loc[1]:], maxPhraseWords)
		if len(toks) == 0 {
			continue
		}

		head := -1
		for i, tok := range toks {
			if _, ok := locationIndex[singular(strings.ToLower(tok))]; ok {
				head = i
			}
		}
		if head >= 0 {
			headWord := singular(strings.ToLower(toks[head]))
			set.add(envCandidate{
				name:     titleCase(strings.Join(toks[:head+1], " ")),
				category: locationIndex[headWord],
				pos:      loc[0],
				head:     headWord,
			})
			continue
		}

		var run []string
		for _, tok := range toks {
			if !isCapitalized(tok) {
				break
			}
			if _, stop := nameStopwords[tok]; stop {
				break
			}
			run = append(run, tok)
		}
		if len(run) > 0 {
			set.add(envCandidate{
				name:     strings.Join(run, " "),
				category: categoryLandmark,
				pos:      loc[0],
			})
		}
	}
}

// leadingWords reads up to max space-separated words from the start of s,
// stopping at punctuation or a connective.
func leadingWords(s string, max int) []string {
	var (
		out     []string
		prevEnd int
	)
	for _, tok := range tokenize(s) {
		if len(out) == max || strings.TrimSpace(s[prevEnd:tok.start]) != "" {
			break
		}
		if _, stop := phraseBreakers[strings.ToLower(tok.text)]; stop {
			break
		}
		out = append(out, tok.text)
		prevEnd = tok.start + len(tok.text)
	}
	return out
}

func singular(w string) string {
	if _, ok := locationIndex[w]; ok {
		return w
	}
	for _, suffix := range []string{"es", "s"} {
		if base := strings.TrimSuffix(w, suffix); base != w {
			if _, ok := locationIndex[base]; ok {
				return base
			}
		}
	}
	return w
}

func vocabularyEnvironments(text string, set *envSet) {
	for _, lm := range locationMatchers {
		hits := lm.m.hits(text)
		if len(hits) == 0 || set.covers(lm.word) {
			continue
		}
		set.add(envCandidate{
			name:     titleCase(lm.word),
			category: lm.category,
			pos:      hits[0].start,
			head:     lm.word,
		})
	}
}

func cityEnvironments(text string, set *envSet, th Thresholds) {
	for _, city := range cities {
		if countWord(text, city, false) < th.MinCityMentions || set.has(city) {
			continue
		}
		set.add(envCandidate{name: city, category: categoryCity, pos: indexWord(text, city, false)})
	}
}

// capitalizedEnvironments admits a capitalized word that keeps turning up
// shortly after a location preposition.
func capitalizedEnvironments(text string, set *envSet, characterNames []string, th Thresholds) {
	toks := tokenize(text)
	excluded := make(map[string]bool)
	for _, n := range characterNames {
		for _, w := range strings.Fields(n) {
			excluded[w] = true
		}
	}

	var (
		order     []string
		nearPrep  = make(map[string]bool)
		totals    = make(map[string]int)
		firstSeen = make(map[string]int)
	)
	for i, tok := range toks {
		word := tok.text
		if !isCapitalized(word) {
			continue
		}
		if _, ok := totals[word]; !ok {
			order = append(order, word)
			firstSeen[word] = tok.start
		}
		totals[word]++
		for j := i - 1; j >= 0 && j >= i-prepositionWindow; j-- {
			if _, ok := locationPrepositions[strings.ToLower(toks[j].text)]; ok {
				nearPrep[word] = true
				break
			}
		}
	}

	for _, word := range order {
		if !nearPrep[word] || totals[word] < th.MinCapitalizedMentions || excluded[word] {
			continue
		}
		if _, stop := nameStopwords[word]; stop || set.covers(word) {
			continue
		}
		set.add(envCandidate{name: word, category: categoryLandmark, pos: firstSeen[word]})
	}
}

func enrichEnvironment(c *envCandidate, text string, sentences []string, words int) Environment {
	var scoped []string
	for _, s := range sentences {
		if indexWord(s, c.name, true) >= 0 || (c.head != "" && indexWord(s, c.head, true) >= 0) {
			scoped = append(scoped, s)
		}
	}
	scope := strings.Join(scoped, " ")
	if scope == "" {
		scope = text
	}

	mentions := countWord(text, c.name, true)
	if c.head != "" && !strings.EqualFold(c.head, c.name) {
		// Bare head-noun references ("the dhaba") count toward the phrase.
		if n := countWord(text, c.head, true); n > mentions {
			mentions = n
		}
	}
	if mentions == 0 {
		mentions = 1
	}

	t := EnvironmentTraits{
		SettingType:  settingType(scope, c.category),
		Size:         sizeMatcher.first(scope),
		Lighting:     strings.Join(lightingMatcher.all(scope), ", "),
		Weather:      weatherMatcher.first(scope),
		TimeOfDay:    timeOfDay(scope),
		Season:       seasonMatcher.first(scope),
		Colors:       colorMatcher.all(scope),
		Atmosphere:   atmosphereMatcher.all(scope),
		Sounds:       soundMatcher.all(scope),
		Mood:         moodMatcher.first(scope),
		Activities:   activityMatcher.all(scope),
		Significance: significance(mentions, words),
	}

	env := Environment{
		Name:     c.name,
		Category: c.category,
		Mentions: mentions,
		Traits:   t,
	}
	env.Description = environmentDescription(env)
	env.Lighting = orDefault(t.Lighting+lightingSuffix(t.Lighting), "natural lighting")
	env.TimeOfDay = orDefault(t.TimeOfDay, "daytime")
	env.Weather = orDefault(t.Weather, "clear")
	env.Content = joinNonEmpty(", ",
		env.Description, env.Lighting, env.TimeOfDay, env.Weather, t.Season,
		strings.Join(environmentTail, ", "),
	)
	return env
}

func lightingSuffix(l string) string {
	if l == "" {
		return ""
	}
	return " lighting"
}

func environmentDescription(e Environment) string {
	t := e.Traits
	setting := t.SettingType + " " + e.Category + " setting"
	if e.Category == categoryLandmark || e.Category == categoryCity {
		setting = t.SettingType + " setting"
	}
	var colors, atmosphere, sounds, activities string
	if len(t.Colors) > 0 {
		colors = "color palette of " + strings.Join(t.Colors, ", ")
	}
	if len(t.Atmosphere) > 0 {
		atmosphere = strings.Join(t.Atmosphere, ", ") + " atmosphere"
	}
	if len(t.Sounds) > 0 {
		sounds = "ambient " + strings.Join(t.Sounds, ", ")
	}
	if len(t.Activities) > 0 {
		activities = "people " + strings.Join(t.Activities, ", ")
	}
	var mood string
	if t.Mood != "" {
		mood = t.Mood + " mood"
	}
	return joinNonEmpty(", ", e.Name, t.Size, setting, colors, atmosphere, sounds, activities, mood)
}

// settingType compares indoor and outdoor keyword counts. The category
// contributes one vote.
func settingType(scope, category string) string {
	indoor := indoorMatcher.count(scope)
	outdoor := outdoorMatcher.count(scope)
	switch category {
	case "indoor", "food", "entertainment":
		indoor++
	case "outdoor", categoryCity:
		outdoor++
	}
	switch {
	case indoor > outdoor:
		return "indoor"
	case outdoor > indoor:
		return "outdoor"
	default:
		return "mixed"
	}
}

func timeOfDay(scope string) string {
	for i, m := range timeMatchers {
		if m.count(scope) > 0 {
			return timeBuckets[i].label
		}
	}
	return ""
}

// significance is mentions per thousand words scaled by 20, capped at 100.
func significance(mentions, words int) int {
	if words == 0 {
		return 0
	}
	perThousand := float64(mentions) * 1000 / float64(words)
	return int(math.Min(100, math.Round(perThousand*20)))
}

func generalScene() Environment {
	return Environment{
		Name:        generalSceneName,
		Category:    categoryGeneral,
		Description: generalSceneName + ", " + "a coherent, realistic background setting",
		Lighting:    "natural lighting",
		TimeOfDay:   "daytime",
		Weather:     "clear",
		Content:     generalSceneContent,
		Traits:      EnvironmentTraits{SettingType: "mixed"},
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
