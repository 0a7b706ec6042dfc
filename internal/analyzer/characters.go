package analyzer

import (
	"regexp"
	"sort"
	"strings"
)

const (
	confidenceParenthetical = 0.95
	confidenceNarrative     = 0.85
	confidenceAttribution   = 0.6
	confidenceFrequency     = 0.4
)

// candidate is one strategy's claim that a name is a character.
type candidate struct {
	name        string
	description string
	confidence  float64
	source      string
}

// characterStrategy is a pure function from script text to candidates.
type characterStrategy struct {
	name string
	find func(text string, th Thresholds) []candidate
}

const nameToken = `\p{Lu}\p{Ll}+`

var (
	parentheticalRe = regexp.MustCompile(`(` + nameToken + `(?:\s+` + nameToken + `)?)\s*\(([^()]+)\)`)
	appositiveRe    = regexp.MustCompile(`(` + nameToken + `),\s+((?:a|an)\s+[^,.;!?]{3,}?)[,.;!?]`)
	namedRe         = regexp.MustCompile(`((?:[Aa]n?|[Tt]he)\s+[^.;,!?]{3,80}?)\s+(?:named|called)\s+(` + nameToken + `)`)
	copulaRe        = regexp.MustCompile(`(` + nameToken + `)\s+(?:was|is)\s+((?:a|an)\s+[^.!?]{3,})[.!?]`)
	attributionRe   = regexp.MustCompile(`(` + nameToken + `)\s+(?:` + strings.Join(attributionVerbs, "|") + `)\b`)
	possessiveRe    = regexp.MustCompile(`(` + nameToken + `)['’]s\b`)
)

var characterStrategies = []characterStrategy{
	{"parenthetical", parentheticalCandidates},
	{"narrative", narrativeCandidates},
	{"attribution", attributionCandidates},
	{"frequency", frequencyCandidates},
}

func parentheticalCandidates(text string, th Thresholds) []candidate {
	var out []candidate
	for _, m := range parentheticalRe.FindAllStringSubmatch(text, -1) {
		desc := strings.TrimSpace(m[2])
		if len([]rune(desc)) < th.MinParentheticalLength || !isCharacterLike(desc) {
			continue
		}
		name, ok := cleanName(m[1])
		if !ok {
			continue
		}
		out = append(out, candidate{name: name, description: desc, confidence: confidenceParenthetical, source: "parenthetical"})
	}
	return out
}

func narrativeCandidates(text string, _ Thresholds) []candidate {
	var out []candidate
	add := func(rawName, desc string) {
		desc = strings.TrimSpace(desc)
		if !isCharacterLike(desc) {
			return
		}
		name, ok := cleanName(rawName)
		if !ok {
			return
		}
		out = append(out, candidate{name: name, description: desc, confidence: confidenceNarrative, source: "narrative"})
	}

	for _, m := range appositiveRe.FindAllStringSubmatch(text, -1) {
		add(m[1], m[2])
	}
	for _, m := range namedRe.FindAllStringSubmatch(text, -1) {
		add(m[2], m[1])
	}
	for _, m := range copulaRe.FindAllStringSubmatch(text, -1) {
		add(m[1], m[2])
	}
	return out
}

func attributionCandidates(text string, th Thresholds) []candidate {
	var (
		order  []string
		counts = make(map[string]int)
	)
	for _, re := range []*regexp.Regexp{attributionRe, possessiveRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name, ok := cleanName(m[1])
			if !ok {
				continue
			}
			if counts[name] == 0 {
				order = append(order, name)
			}
			counts[name]++
		}
	}

	var out []candidate
	for _, name := range order {
		if counts[name] >= th.MinAttributionHits {
			out = append(out, candidate{name: name, confidence: confidenceAttribution, source: "attribution"})
		}
	}
	return out
}

func frequencyCandidates(text string, th Thresholds) []candidate {
	var (
		order  []string
		counts = make(map[string]int)
	)
	for _, tok := range tokenize(text) {
		word := strings.TrimSuffix(strings.TrimSuffix(tok.text, "'s"), "’s")
		if !isCapitalized(word) || strings.ContainsAny(word, "-'’") {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}

	var out []candidate
	for _, word := range order {
		if counts[word] < th.MinFrequency || isPlaceWord(word) {
			continue
		}
		if name, ok := cleanName(word); ok {
			out = append(out, candidate{name: name, confidence: confidenceFrequency, source: "frequency"})
		}
	}
	return out
}

// cleanName drops leading honorifics and rejects stopwords.
func cleanName(raw string) (string, bool) {
	words := strings.Fields(raw)
	for len(words) > 0 {
		if _, stop := nameStopwords[words[0]]; !stop {
			break
		}
		words = words[1:]
	}
	if len(words) == 0 {
		return "", false
	}
	for _, w := range words {
		if _, stop := nameStopwords[w]; stop {
			return "", false
		}
		if len([]rune(w)) < 2 || isPlaceWord(w) {
			return "", false
		}
	}
	return strings.Join(words, " "), true
}

func isCharacterLike(desc string) bool {
	lower := strings.ToLower(desc)
	for _, kw := range embodimentKeywords {
		if indexWord(lower, kw, false) >= 0 {
			return true
		}
	}
	return false
}

func isPlaceWord(word string) bool {
	lower := strings.ToLower(word)
	if _, ok := locationIndex[lower]; ok {
		return true
	}
	for _, c := range cities {
		if strings.EqualFold(c, word) {
			return true
		}
	}
	return false
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// mergeCandidates folds candidates by normalized name. The first non-empty
// description wins and confidence is the maximum seen. Output is ordered
// by first appearance of the name in text.
func mergeCandidates(text string, cands []candidate) []candidate {
	var (
		order  []string
		merged = make(map[string]*candidate)
	)
	for _, c := range cands {
		key := normalizeName(c.name)
		existing, ok := merged[key]
		if !ok {
			cp := c
			merged[key] = &cp
			order = append(order, key)
			continue
		}
		if existing.description == "" && c.description != "" {
			existing.description = c.description
		}
		if c.confidence > existing.confidence {
			existing.confidence = c.confidence
			existing.source = c.source
		}
	}

	out := make([]candidate, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}

	pos := func(c candidate) int {
		if i := indexWord(text, c.name, false); i >= 0 {
			return i
		}
		return len(text)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return pos(out[i]) < pos(out[j])
	})
	return out
}
