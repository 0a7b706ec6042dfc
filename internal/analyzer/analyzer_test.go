package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dhabaScene = "Sara (28-year-old woman, long black hair, green eyes, wearing a red coat) walked into the Roadside Dhaba."

func TestDhabaScenario(t *testing.T) {
	res := New().Analyze(dhabaScene)

	require.Len(t, res.Characters, 1)
	sara := res.Characters[0]
	assert.Equal(t, "Sara", sara.Name)
	assert.Equal(t, "parenthetical", sara.Source)
	assert.InDelta(t, 0.95, sara.Confidence, 1e-9)
	assert.Equal(t, "28 years old", sara.Traits.Age)
	assert.Equal(t, "female", sara.Traits.Gender)
	assert.Equal(t, "long", sara.Traits.HairLength)
	assert.Equal(t, "black", sara.Traits.HairColor)
	assert.Equal(t, "green", sara.Traits.EyeColor)
	assert.Equal(t, "a red coat", sara.Traits.Clothing)
	assert.Contains(t, sara.Content, "long black hair")
	assert.Contains(t, sara.Content, "green eyes")
	assert.Contains(t, sara.Content, "photorealistic")

	require.Len(t, res.Environments, 1)
	env := res.Environments[0]
	assert.Equal(t, "Roadside Dhaba", env.Name)
	assert.Equal(t, "food", env.Category)
	assert.Equal(t, 100, env.Traits.Significance)
	assert.Contains(t, env.Content, "Roadside Dhaba")
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	script := `Ravi, a tall man with a thick beard, entered the station on a rainy evening.
Ravi looked at the crowded platform. Ravi said nothing.
Meera (a 30-year-old woman with curly brown hair and hazel eyes, wearing a yellow saree) waved at him from the tea stall.
Meera smiled. Meera's voice was warm. Later they walked to the old market where vendors were selling spices.`

	a := New()
	first := a.Analyze(script)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, a.Analyze(script))
	}
	assert.Equal(t, first, New().Analyze(script))
}

func TestEnvironmentsNeverEmpty(t *testing.T) {
	inputs := []string{"", "   ", "hello", "((((", "He said nothing.", "\n\n\n"}
	for _, in := range inputs {
		envs := New().ExtractEnvironments(in)
		require.NotEmpty(t, envs, "input %q", in)
	}

	envs := New().ExtractEnvironments("")
	require.Len(t, envs, 1)
	assert.Equal(t, "General Scene", envs[0].Name)
	assert.NotEmpty(t, envs[0].Content)
	assert.Empty(t, New().ExtractCharacters(""))
}

func TestCharacterStrategies(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantName   string
		wantSource string
		check      func(t *testing.T, c Character)
	}{
		{
			name:       "narrative appositive",
			text:       "Ravi, a tall man with a thick beard, entered the station.",
			wantName:   "Ravi",
			wantSource: "narrative",
			check: func(t *testing.T, c Character) {
				assert.Equal(t, "male", c.Traits.Gender)
				assert.Equal(t, "tall", c.Traits.Height)
				assert.Equal(t, "thick beard", c.Traits.FacialHair)
			},
		},
		{
			name:       "named form",
			text:       "A young woman with short red hair named Lena crossed the bridge.",
			wantName:   "Lena",
			wantSource: "narrative",
			check: func(t *testing.T, c Character) {
				assert.Equal(t, "short", c.Traits.HairLength)
				assert.Equal(t, "red", c.Traits.HairColor)
			},
		},
		{
			name:       "attribution needs two hits",
			text:       "Kiran said hello. Later Kiran smiled at the door.",
			wantName:   "Kiran",
			wantSource: "attribution",
		},
		{
			name:       "frequency fallback",
			text:       "Everyone loved Meena. The kids followed Meena home. Nobody forgot Meena. Even now Meena is remembered.",
			wantName:   "Meena",
			wantSource: "frequency",
		},
		{
			name:       "honorific is dropped",
			text:       "Dr Mehta (a 50-year-old man with gray hair and round glasses) opened the clinic.",
			wantName:   "Mehta",
			wantSource: "parenthetical",
			check: func(t *testing.T, c Character) {
				assert.Equal(t, "50 years old", c.Traits.Age)
				assert.Contains(t, c.Traits.Accessories, "glasses")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chars := New().ExtractCharacters(tt.text)
			require.Len(t, chars, 1, "%+v", chars)
			assert.Equal(t, tt.wantName, chars[0].Name)
			assert.Equal(t, tt.wantSource, chars[0].Source)
			if tt.check != nil {
				tt.check(t, chars[0])
			}
		})
	}
}

func TestCharacterRejections(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"single attribution", "Kiran said hello to the crowd."},
		{"non-character aside", "Delhi (the capital, crowded and loud at all hours) was waking up."},
		{"stopword name", "Monday (a long grey day with rain on every window) began slowly."},
		{"short parenthetical", "Tara (a woman) left."},
		{"three mentions only", "Meena came. Meena left. Meena returned."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, New().ExtractCharacters(tt.text))
		})
	}
}

func TestMergeKeepsFirstDescriptionAndMaxConfidence(t *testing.T) {
	text := "Kiran said yes. Kiran (a slim boy with messy black hair and brown eyes) nodded. Kiran laughed."
	chars := New().ExtractCharacters(text)
	require.Len(t, chars, 1)
	assert.Equal(t, "parenthetical", chars[0].Source)
	assert.InDelta(t, 0.95, chars[0].Confidence, 1e-9)
	assert.Contains(t, chars[0].Description, "slim boy")
	assert.Equal(t, "slim", chars[0].Traits.Build)
}

func TestCharactersOrderedByFirstAppearance(t *testing.T) {
	text := "Omar said hi. Anita (a 40-year-old woman with wavy grey hair) answered. Omar nodded."
	chars := New().ExtractCharacters(text)
	require.Len(t, chars, 2)
	assert.Equal(t, "Omar", chars[0].Name)
	assert.Equal(t, "Anita", chars[1].Name)
}

func TestEnvironmentExtractors(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantName string
		wantCat  string
	}{
		{"preposition phrase", "They sat in the old kitchen for hours.", "Old Kitchen", "food"},
		{"vocabulary", "The cafe was empty.", "Cafe", "food"},
		{"plural vocabulary", "She stared at distant mountains.", "Mountain", "outdoor"},
		{"city needs two mentions", "Mumbai was hot. She loved Mumbai.", "Mumbai", "city"},
		{"capitalized near preposition", "They drove to Kasauli. At Kasauli the air was cold. Back in Kasauli they rested.", "Kasauli", "landmark"},
		{"proper name phrase", "We met at the Blue Lotus yesterday.", "Blue Lotus", "landmark"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := New().ExtractEnvironments(tt.text)
			require.NotEmpty(t, envs)
			assert.Equal(t, tt.wantName, envs[0].Name)
			assert.Equal(t, tt.wantCat, envs[0].Category)
		})
	}

	t.Run("single city mention is ignored", func(t *testing.T) {
		envs := New().ExtractEnvironments("She dreamed of Paris.")
		require.Len(t, envs, 1)
		assert.Equal(t, "General Scene", envs[0].Name)
	})
}

func TestEnvironmentEnrichment(t *testing.T) {
	text := "At night and in the morning the small cafe was crowded and noisy. " +
		"Dim, flickering lights lit the red and gold walls of the cafe while music played and people were eating."
	envs := New().ExtractEnvironments(text)
	require.Len(t, envs, 1)
	tr := envs[0].Traits

	assert.Equal(t, "morning", tr.TimeOfDay, "morning outranks night")
	assert.Equal(t, "small", tr.Size)
	assert.Equal(t, "indoor", tr.SettingType)
	assert.Equal(t, "dim, flickering", tr.Lighting)
	assert.Equal(t, []string{"red"}, tr.Colors)
	assert.Equal(t, []string{"crowded", "noisy"}, tr.Atmosphere)
	assert.Equal(t, []string{"music"}, tr.Sounds)
	assert.Equal(t, []string{"eating"}, tr.Activities)
	assert.Equal(t, "dim, flickering lighting", envs[0].Lighting)
	assert.Equal(t, "morning", envs[0].TimeOfDay)
}

func TestSettingType(t *testing.T) {
	tests := []struct {
		scope, category, want string
	}{
		{"a table by the window", "landmark", "indoor"},
		{"under an open sky by the road", "landmark", "outdoor"},
		{"nothing much", "landmark", "mixed"},
		{"nothing much", "outdoor", "outdoor"},
		{"the sky outside", "indoor", "outdoor"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, settingType(tt.scope, tt.category), tt.scope)
	}
}

func TestSignificance(t *testing.T) {
	tests := []struct {
		mentions, words, want int
	}{
		{1, 1000, 20},
		{2, 1000, 40},
		{1, 40, 100},
		{3, 0, 0},
		{1, 3000, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, significance(tt.mentions, tt.words))
	}
}

func TestDominantEnvironment(t *testing.T) {
	res := Result{Environments: []Environment{
		{Name: "Beach", Traits: EnvironmentTraits{Significance: 40}},
		{Name: "Cafe", Traits: EnvironmentTraits{Significance: 60}},
		{Name: "Park", Traits: EnvironmentTraits{Significance: 60}},
	}}
	assert.Equal(t, "Cafe", res.Dominant().Name)
	assert.Equal(t, "General Scene", Result{}.Dominant().Name)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences(`He left. "Why?" she asked!  Then silence
New line here`)
	assert.Equal(t, []string{"He left.", `"Why?"`, "she asked!", "Then silence", "New line here"}, got)
}

func TestWordMatcherBoundaries(t *testing.T) {
	m := newWordMatcher([]string{"bar", "café", "rain", "raining"}, true)
	assert.Equal(t, []string{"café", "raining", "bar"}, m.all("The barber left the café, raining on two bars."))
	assert.Equal(t, "", m.first("barbecue"))
}
