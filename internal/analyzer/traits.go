package analyzer

import (
	"regexp"
	"strings"
)

// CharacterTraits are the structured fields pulled from every sentence that
// mentions a character. Empty means no pattern matched.
type CharacterTraits struct {
	Age            string   `json:"age,omitempty"`
	Gender         string   `json:"gender,omitempty"`
	Nationality    string   `json:"nationality,omitempty"`
	SkinTone       string   `json:"skin_tone,omitempty"`
	FaceShape      string   `json:"face_shape,omitempty"`
	HairColor      string   `json:"hair_color,omitempty"`
	HairLength     string   `json:"hair_length,omitempty"`
	HairStyle      string   `json:"hair_style,omitempty"`
	FacialHair     string   `json:"facial_hair,omitempty"`
	EyeColor       string   `json:"eye_color,omitempty"`
	EyeDescription string   `json:"eye_description,omitempty"`
	Height         string   `json:"height,omitempty"`
	Build          string   `json:"build,omitempty"`
	FacialFeatures string   `json:"facial_features,omitempty"`
	Clothing       string   `json:"clothing,omitempty"`
	Accessories    string   `json:"accessories,omitempty"`
	Personality    []string `json:"personality,omitempty"`
	Demeanor       string   `json:"demeanor,omitempty"`
	Attitude       string   `json:"attitude,omitempty"`
}

var (
	ageRe          = regexp.MustCompile(`(?i)\b(\d{1,3})[\s-]*years?[\s-]*old\b`)
	ageLabelRe     = regexp.MustCompile(`(?i)\bage[:\s]+(\d{1,3})\b`)
	agedRe         = regexp.MustCompile(`(?i)\baged\s+(\d{1,3})\b`)
	skinRe         = regexp.MustCompile(`(?i)\b((?:fair|pale|light|olive|tan|tanned|brown|dark|dusky|wheatish|ebony|porcelain|bronze|golden)[\s-]+(?:skin(?:ned)?|complexion(?:ed)?))\b`)
	faceShapeRe    = regexp.MustCompile(`(?i)\b((?:oval|round|square|heart-shaped|long|angular|diamond|narrow|chubby)[\s-]+(?:face|faced))\b`)
	hairPhraseRe   = regexp.MustCompile(`(?i)\b((?:[a-z]+(?:-[a-z]+)*\s+){1,3})hair\b`)
	facialHairRe   = regexp.MustCompile(`(?i)\b((?:(?:thick|thin|short|long|neat|trimmed|full|gray|grey|white|black|scruffy|light)\s+)?(?:beard|mustache|moustache|goatee|stubble|sideburns)|clean-shaven)\b`)
	eyesRe         = regexp.MustCompile(`(?i)\b((?:[a-z]+(?:-[a-z]+)*\s+){1,2})eyes\b`)
	heightRe       = regexp.MustCompile(`(?i)\b(tall|very tall|towering|petite|of average height|average height|\d\s*(?:feet|foot|ft)(?:\s*\d+\s*(?:inches|in))?|short (?:man|woman|boy|girl|stature))\b`)
	facialFeatRe   = regexp.MustCompile(`(?i)\b((?:sharp|high|strong|soft|chiseled|prominent|defined|angular|pointed|button)\s+(?:jawline|jaw|cheekbones|nose|chin|features)|freckles|dimples|(?:a\s+)?scar(?:\s+on\s+(?:his|her|the)\s+[a-z]+)?|birthmark|wrinkles)\b`)
	clothingRe     = regexp.MustCompile(`(?i)\b(?:wearing|wears|wore|dressed in|clad in|donning|in a|in an)\s+([^,.;()!?]+?(?:shirt|t-shirt|coat|jacket|dress|saree|sari|kurta|jeans|suit|uniform|hoodie|sweater|blouse|skirt|trousers|pants|shorts|robe|gown|overcoat|vest|lehenga|dhoti|shawl|cardigan|blazer|tunic|outfit|clothes|attire)s?)\b`)
	clothingVerbRe = regexp.MustCompile(`(?i)\b(?:wearing|wears|wore|dressed in|clad in|donning)\s+([^,.;()!?]+)`)
)

var (
	nationalityMatcher = newWordMatcher(nationalities, false)
	buildMatcher       = newWordMatcher(buildWords, false)
	accessoryMatcher   = newWordMatcher(accessoryWords, true)
	personalityMatcher = newWordMatcher(personalityWords, false)
	demeanorRe         = regexp.MustCompile(`(?i)\b(` + strings.Join(demeanorWords, "|") + `)\s+(?:demeanor|demeanour|expression|look|posture|manner|face|smile)\b`)
	attitudeMatcher    = newWordMatcher(attitudeWords, false)
	maleMatcher        = newWordMatcher(maleWords, false)
	femaleMatcher      = newWordMatcher(femaleWords, false)
)

// sentencesMentioning returns every sentence containing the full name or
// its first word.
func sentencesMentioning(sentences []string, name string) []string {
	first := strings.Fields(name)[0]
	var out []string
	for _, s := range sentences {
		if indexWord(s, name, false) >= 0 || indexWord(s, first, false) >= 0 {
			out = append(out, s)
		}
	}
	return out
}

func extractTraits(name string, sentences []string) CharacterTraits {
	var t CharacterTraits
	text := strings.Join(sentences, " ")
	if text == "" {
		return t
	}

	t.Age = extractAge(text)
	t.Gender = extractGender(name, text)
	t.Nationality = nationalityMatcher.first(text)
	t.SkinTone = firstGroup(skinRe, text)
	t.FaceShape = firstGroup(faceShapeRe, text)
	t.HairLength, t.HairStyle, t.HairColor = extractHair(text)
	t.FacialHair = firstGroup(facialHairRe, text)
	t.EyeColor, t.EyeDescription = extractEyes(text)
	t.Height = firstGroup(heightRe, text)
	t.Build = strings.Join(buildMatcher.all(text), ", ")
	t.FacialFeatures = strings.Join(allGroups(facialFeatRe, text), ", ")
	t.Clothing = extractClothing(text)
	t.Accessories = strings.Join(accessoryMatcher.all(text), ", ")
	t.Personality = personalityMatcher.all(text)
	t.Demeanor = firstGroup(demeanorRe, text)
	t.Attitude = attitudeMatcher.first(text)
	return t
}

func extractAge(text string) string {
	for _, re := range []*regexp.Regexp{ageRe, ageLabelRe, agedRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1] + " years old"
		}
	}
	return ""
}

// extractGender votes over gendered words and falls back to a small table
// of known first names.
func extractGender(name, text string) string {
	male := maleMatcher.count(text)
	female := femaleMatcher.count(text)
	switch {
	case male > female:
		return "male"
	case female > male:
		return "female"
	}
	return nameGender[strings.ToLower(strings.Fields(name)[0])]
}

func extractHair(text string) (length, style, color string) {
	m := hairPhraseRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", ""
	}
	var colors, styles []string
	for _, w := range strings.Fields(strings.ToLower(m[1])) {
		switch {
		case contains(hairLengths, w) && length == "":
			length = w
		case contains(hairColors, w):
			colors = append(colors, w)
		case contains(hairStyles, w):
			styles = append(styles, w)
		}
	}
	return length, strings.Join(styles, " "), strings.Join(colors, " ")
}

func extractEyes(text string) (color, description string) {
	for _, m := range eyesRe.FindAllStringSubmatch(text, -1) {
		var rest []string
		for _, w := range strings.Fields(strings.ToLower(m[1])) {
			if contains(eyeColors, w) && color == "" {
				color = w
				continue
			}
			if w == "a" || w == "an" || w == "the" || w == "his" || w == "her" || w == "with" || w == "and" {
				continue
			}
			rest = append(rest, w)
		}
		if description == "" && len(rest) > 0 {
			description = strings.Join(rest, " ")
		}
		if color != "" {
			break
		}
	}
	return color, description
}

func extractClothing(text string) string {
	items := allGroups(clothingRe, text)
	if len(items) == 0 {
		items = allGroups(clothingVerbRe, text)
	}
	return strings.Join(items, ", ")
}

// characterContent renders the non-empty traits plus the fixed rendering
// tail. When nothing was extracted the raw description stands in.
func characterContent(t CharacterTraits, description string) string {
	var hair string
	if t.HairLength != "" || t.HairStyle != "" || t.HairColor != "" {
		hair = joinNonEmpty(" ", t.HairLength, t.HairStyle, t.HairColor, "hair")
	}
	var eyes string
	if t.EyeColor != "" || t.EyeDescription != "" {
		eyes = joinNonEmpty(" ", t.EyeDescription, t.EyeColor, "eyes")
	}
	var clothing string
	if t.Clothing != "" {
		clothing = "wearing " + t.Clothing
	}
	var personality string
	if len(t.Personality) > 0 {
		personality = strings.Join(t.Personality, " and ") + " personality"
	}
	var demeanor string
	if t.Demeanor != "" {
		demeanor = t.Demeanor + " demeanor"
	}
	var attitude string
	if t.Attitude != "" {
		attitude = t.Attitude + " attitude"
	}

	fields := joinNonEmpty(", ",
		t.Age, t.Gender, t.Nationality, t.SkinTone, t.FaceShape, hair,
		t.FacialHair, eyes, t.Height, t.Build, t.FacialFeatures, clothing,
		t.Accessories, personality, demeanor, attitude,
	)
	if fields == "" {
		fields = strings.TrimSpace(description)
	}
	return joinNonEmpty(", ", fields, strings.Join(characterTail, ", "))
}

func firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	return ""
}

// allGroups returns distinct first-group matches in order.
func allGroups(re *regexp.Regexp, text string) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		v := strings.ToLower(strings.TrimSpace(m[1]))
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func contains(set map[string]struct{}, w string) bool {
	_, ok := set[w]
	return ok
}
