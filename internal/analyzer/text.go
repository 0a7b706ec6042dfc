package analyzer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sentences splits text into trimmed sentences.
func Sentences(text string) []string {
	return splitSentences(text)
}

// splitSentences breaks text on terminal punctuation followed by space and
// on newlines. Closing quotes and brackets stay with their sentence.
func splitSentences(text string) []string {
	var (
		out     []string
		b       strings.Builder
		pending bool
	)
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
		pending = false
	}

	rs := []rune(text)
	for i, r := range rs {
		if r == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		switch {
		case r == '.' || r == '!' || r == '?':
			pending = true
		case pending && isCloser(r):
		case !unicode.IsSpace(r):
			pending = false
		}
		if pending && (i+1 == len(rs) || unicode.IsSpace(rs[i+1])) {
			flush()
		}
	}
	flush()
	return out
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}

type token struct {
	text  string
	start int
}

// tokenize returns runs of letters, digits, apostrophes and hyphens.
func tokenize(text string) []token {
	var (
		out   []token
		start = -1
	)
	for i, r := range text {
		inWord := unicode.IsLetter(r) || unicode.IsDigit(r) ||
			((r == '\'' || r == '-' || r == '’') && start >= 0)
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			out = append(out, token{text: strings.TrimRight(text[start:i], "'-’"), start: start})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, token{text: strings.TrimRight(text[start:], "'-’"), start: start})
	}
	return out
}

func wordCount(text string) int {
	return len(tokenize(text))
}

func isCapitalized(word string) bool {
	first, size := utf8.DecodeRuneInString(word)
	if size == 0 || !unicode.IsUpper(first) {
		return false
	}
	second, _ := utf8.DecodeRuneInString(word[size:])
	return unicode.IsLower(second)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func atBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// indexWord finds word in text on word boundaries. Matching is
// case-sensitive unless fold is set.
func indexWord(text, word string, fold bool) int {
	if word == "" {
		return -1
	}
	hay, needle := text, word
	if fold {
		hay, needle = strings.ToLower(text), strings.ToLower(word)
	}
	for offset := 0; offset < len(hay); {
		i := strings.Index(hay[offset:], needle)
		if i < 0 {
			return -1
		}
		start := offset + i
		if atBoundary(hay, start, start+len(needle)) {
			return start
		}
		offset = start + len(needle)
	}
	return -1
}

func countWord(text, word string, fold bool) int {
	n := 0
	for offset := 0; offset < len(text); {
		i := indexWord(text[offset:], word, fold)
		if i < 0 {
			break
		}
		n++
		offset += i + len(word)
	}
	return n
}

// wordMatcher finds any of a fixed list of words or phrases on word
// boundaries, case-insensitively. Longer alternatives are tried first.
type wordMatcher struct {
	re *regexp.Regexp
}

type wordHit struct {
	word  string
	start int
}

func newWordMatcher(words []string, plural bool) *wordMatcher {
	sorted := append([]string(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	pattern := `(?i)(` + strings.Join(quoted, "|") + `)`
	if plural {
		pattern += `(?:es|s)?`
	}
	return &wordMatcher{re: regexp.MustCompile(pattern)}
}

func (m *wordMatcher) hits(text string) []wordHit {
	var out []wordHit
	for _, loc := range m.re.FindAllStringSubmatchIndex(text, -1) {
		if !atBoundary(text, loc[0], loc[1]) {
			continue
		}
		out = append(out, wordHit{
			word:  strings.ToLower(text[loc[2]:loc[3]]),
			start: loc[0],
		})
	}
	return out
}

// all returns distinct matched words in order of first appearance.
func (m *wordMatcher) all(text string) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, h := range m.hits(text) {
		if !seen[h.word] {
			seen[h.word] = true
			out = append(out, h.word)
		}
	}
	return out
}

func (m *wordMatcher) first(text string) string {
	if hits := m.hits(text); len(hits) > 0 {
		return hits[0].word
	}
	return ""
}

func (m *wordMatcher) count(text string) int {
	return len(m.hits(text))
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
