package consistency

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vampirenirmal/framesmith/internal/analyzer"
	"github.com/vampirenirmal/framesmith/internal/storage"
)

type fixedAnalyzer struct {
	result analyzer.Result
	calls  int
}

func (f *fixedAnalyzer) Analyze(string) analyzer.Result {
	f.calls++
	return f.result
}

func oneOfEach() *fixedAnalyzer {
	return &fixedAnalyzer{result: analyzer.Result{
		Characters: []analyzer.Character{
			{Name: "Maya", Content: "28 years old, female, short curly black hair"},
		},
		Environments: []analyzer.Environment{
			{
				Name:        "Beach",
				Category:    "outdoor",
				Description: "Beach, wide outdoor setting",
				Lighting:    "golden hour lighting",
				TimeOfDay:   "evening",
				Weather:     "windy",
				Content:     "Beach, wide outdoor setting, golden hour lighting",
				Traits:      analyzer.EnvironmentTraits{Significance: 80},
			},
		},
	}}
}

func twoOfEach() *fixedAnalyzer {
	return &fixedAnalyzer{result: analyzer.Result{
		Characters: []analyzer.Character{
			{Name: "Maya", Content: "tall woman in a green jacket"},
			{Name: "Ravi", Content: "bearded man in a grey kurta"},
		},
		Environments: []analyzer.Environment{
			{Name: "Cafe", Description: "small cafe", Lighting: "dim", TimeOfDay: "night", Weather: "clear", Traits: analyzer.EnvironmentTraits{Significance: 30}},
			{Name: "Night Market", Description: "busy market", Lighting: "neon", TimeOfDay: "night", Weather: "humid", Traits: analyzer.EnvironmentTraits{Significance: 90}},
		},
	}}
}

func newRepo() *storage.Repository[ProfileSet] {
	return storage.NewRepository[ProfileSet](storage.NewMemory(), "profiles")
}

func TestPromptFallbackBeforeAnalysis(t *testing.T) {
	s := NewStore(nil, oneOfEach())
	assert.Equal(t, "walks on beach", s.BuildConsistentPrompt("walks on beach", ""))
	assert.Equal(t, "walks on beach", s.BuildConsistentPrompt("walks on beach", "Maya"))

	require.NoError(t, s.UpsertCharacter(context.Background(), "Maya", "red scarf"))
	assert.Equal(t, "walks on beach", s.BuildConsistentPrompt("walks on beach", "Maya"),
		"manual profiles do not complete analysis")
}

func TestPromptBlockOrder(t *testing.T) {
	s := NewStore(nil, oneOfEach())
	_, err := s.Analyze(context.Background(), "ignored")
	require.NoError(t, err)

	prompt := s.BuildConsistentPrompt("walks on beach", "")

	cfg := strings.Index(prompt, `"render_config"`)
	id := strings.Index(prompt, "[IDENTITY LOCK:")
	env := strings.Index(prompt, "[ENVIRONMENT LOCK:")
	require.GreaterOrEqual(t, cfg, 0)
	assert.Less(t, cfg, id)
	assert.Less(t, id, env)

	lines := strings.Split(prompt, "\n")
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "walks on beach"))
	assert.Equal(t, "SCENE ACTION: walks on beach", lines[len(lines)-1])

	assert.Contains(t, prompt, "28 years old, female, short curly black hair")
	assert.Contains(t, prompt, "Lighting: golden hour lighting")
	assert.Contains(t, prompt, "Time of day: evening")
	assert.Contains(t, prompt, "Weather: windy")

	for _, key := range []string{"character_consistency", "identity_lock", "preserve_identity",
		"suppress_randomness", "environment_consistency", "background_lock", "style_consistency"} {
		assert.Contains(t, prompt, key)
	}

	blocks := strings.Split(prompt, "\n\n")
	assert.Len(t, blocks, 4)
}

func TestPromptNeverCarriesSeed(t *testing.T) {
	s := NewStore(nil, oneOfEach())
	_, err := s.Analyze(context.Background(), "ignored")
	require.NoError(t, err)

	opts := s.ImageGenerationOptions("Maya")
	require.NotZero(t, opts.Seed)
	assert.Equal(t, opts, s.VideoGenerationOptions("maya"))

	prompt := s.BuildConsistentPrompt("walks on beach", "Maya")
	assert.NotContains(t, prompt, strconv.FormatUint(opts.Seed, 10))
}

func TestPromptCharacterSelection(t *testing.T) {
	s := NewStore(nil, twoOfEach())
	_, err := s.Analyze(context.Background(), "ignored")
	require.NoError(t, err)

	tests := []struct {
		name     string
		argument string
		want     string
	}{
		{"explicit", "Ravi", "[IDENTITY LOCK: Ravi]"},
		{"case-insensitive", " ravi ", "[IDENTITY LOCK: Ravi]"},
		{"unknown falls back to first registered", "Zed", "[IDENTITY LOCK: Maya]"},
		{"empty falls back to first registered", "", "[IDENTITY LOCK: Maya]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := s.BuildConsistentPrompt("sits down", tt.argument)
			assert.Contains(t, prompt, tt.want)
			assert.Equal(t, 1, strings.Count(prompt, "[IDENTITY LOCK:"))
		})
	}
}

func TestPromptEnvironmentSelection(t *testing.T) {
	s := NewStore(nil, twoOfEach())
	_, err := s.Analyze(context.Background(), "ignored")
	require.NoError(t, err)

	assert.Equal(t, "night market", s.Snapshot().ActiveEnvironment)

	prompt := s.BuildConsistentPrompt("Maya orders tea at the cafe", "")
	assert.Contains(t, prompt, "[ENVIRONMENT LOCK: Cafe]")
	assert.Equal(t, 1, strings.Count(prompt, "[ENVIRONMENT LOCK:"))

	prompt = s.BuildConsistentPrompt("Maya walks home", "")
	assert.Contains(t, prompt, "[ENVIRONMENT LOCK: Night Market]", "active environment is the default")

	prompt = s.BuildConsistentPrompt("Maya leaves the cafeteria", "")
	assert.Contains(t, prompt, "[ENVIRONMENT LOCK: Night Market]", "names match on word boundaries")
}

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newRepo(), oneOfEach())

	assert.ErrorIs(t, s.Lock(ctx), ErrNotAnalyzed)

	_, err := s.Analyze(ctx, "ignored")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Lock(ctx), ErrMissingMasterImage)
	assert.Len(t, s.Snapshot().MissingMasterImages(), 2)

	require.NoError(t, s.SetMasterImage(ctx, KindCharacter, "maya", "https://cdn.example/maya.png"))
	assert.ErrorIs(t, s.SetMasterImage(ctx, KindCharacter, "Maya", "https://cdn.example/other.png"), ErrMasterImageSet)
	assert.ErrorIs(t, s.SetMasterImage(ctx, KindCharacter, "Nobody", "x"), ErrUnknownProfile)
	assert.ErrorIs(t, s.Lock(ctx), ErrMissingMasterImage)

	require.NoError(t, s.SetMasterImage(ctx, KindEnvironment, "Beach", "https://cdn.example/beach.png"))
	require.NoError(t, s.Lock(ctx))
	require.NoError(t, s.Lock(ctx), "locking twice is a no-op")

	before := s.Snapshot()
	assert.True(t, before.Locked)
	assert.True(t, before.Characters["maya"].Locked)

	_, err = s.Analyze(ctx, "another script")
	assert.ErrorIs(t, err, ErrLocked)
	assert.ErrorIs(t, s.UpsertCharacter(ctx, "Maya", "changed"), ErrLocked)
	assert.ErrorIs(t, s.UpsertEnvironment(ctx, EnvironmentProfile{Name: "Moon"}), ErrLocked)
	assert.ErrorIs(t, s.SetMasterImage(ctx, KindCharacter, "Maya", "x"), ErrLocked)
	assert.ErrorIs(t, s.Clear(ctx), ErrLocked)

	after := s.Snapshot()
	assert.Equal(t, before, after)
	assert.Contains(t, s.BuildConsistentPrompt("walks on beach", ""), "[IDENTITY LOCK: Maya]")

	require.NoError(t, s.Discard(ctx))
	assert.False(t, s.Snapshot().Locked)
}

func TestProfilesPersist(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()

	s := NewStore(repo, twoOfEach())
	_, err := s.Analyze(ctx, "ignored")
	require.NoError(t, err)
	require.NoError(t, s.SetMasterImage(ctx, KindCharacter, "Ravi", "https://cdn.example/ravi.png"))

	restored := NewStore(repo, twoOfEach())
	require.NoError(t, restored.Load(ctx))

	want, got := s.Snapshot(), restored.Snapshot()
	assert.Equal(t, want.CharacterOrder, got.CharacterOrder)
	assert.Equal(t, want.Characters, got.Characters)
	assert.Equal(t, want.ActiveEnvironment, got.ActiveEnvironment)
	assert.True(t, got.AnalysisComplete)
	assert.Equal(t,
		s.BuildConsistentPrompt("Ravi at the cafe", "Ravi"),
		restored.BuildConsistentPrompt("Ravi at the cafe", "Ravi"))
}

func TestLoadWithoutState(t *testing.T) {
	s := NewStore(newRepo(), nil)
	require.NoError(t, s.Load(context.Background()))
	assert.False(t, s.Snapshot().AnalysisComplete)
}

func TestReanalysisKeepsMatchingMasterImages(t *testing.T) {
	ctx := context.Background()
	an := twoOfEach()
	s := NewStore(nil, an)
	_, err := s.Analyze(ctx, "ignored")
	require.NoError(t, err)
	require.NoError(t, s.SetMasterImage(ctx, KindCharacter, "Maya", "https://cdn.example/maya.png"))
	require.NoError(t, s.SetMasterImage(ctx, KindCharacter, "Ravi", "https://cdn.example/ravi.png"))

	an.result.Characters[1].Content = "clean-shaven man in a white kurta"
	_, err = s.Analyze(ctx, "ignored")
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, "https://cdn.example/maya.png", snap.Characters["maya"].MasterImageURL)
	assert.Empty(t, snap.Characters["ravi"].MasterImageURL, "changed attributes invalidate the image")
}

func TestUpsertCharacter(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)

	assert.ErrorIs(t, s.UpsertCharacter(ctx, "  ", "x"), ErrEmptyName)
	require.NoError(t, s.UpsertCharacter(ctx, "Maya", "red scarf"))
	require.NoError(t, s.SetMasterImage(ctx, KindCharacter, "Maya", "https://cdn.example/maya.png"))

	require.NoError(t, s.UpsertCharacter(ctx, "MAYA", "blue scarf"))
	snap := s.Snapshot()
	require.Len(t, snap.CharacterOrder, 1)
	assert.Equal(t, "Maya", snap.Characters["maya"].Name)
	assert.Equal(t, "blue scarf", snap.Characters["maya"].Attributes)
	assert.Empty(t, snap.Characters["maya"].MasterImageURL)
}

func TestAnalyzeWithHeuristics(t *testing.T) {
	s := NewStore(nil, nil)
	_, err := s.Analyze(context.Background(),
		"Sara (28-year-old woman, long black hair, green eyes, wearing a red coat) walked into the Roadside Dhaba.")
	require.NoError(t, err)

	prompt := s.BuildConsistentPrompt("Sara orders chai", "")
	assert.Contains(t, prompt, "[IDENTITY LOCK: Sara]")
	assert.Contains(t, prompt, "[ENVIRONMENT LOCK: Roadside Dhaba]")
	assert.Contains(t, prompt, "green eyes")
}

func TestMentionedCharacter(t *testing.T) {
	s := NewStore(nil, twoOfEach())
	_, err := s.Analyze(context.Background(), "ignored")
	require.NoError(t, err)

	first := s.Snapshot().OrderedCharacters()
	require.Len(t, first, 2)
	second := first[1].Name

	assert.Equal(t, second, s.MentionedCharacter("Later "+strings.ToLower(second)+" waves goodbye"))
	assert.Empty(t, s.MentionedCharacter("nobody is here"))
}

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		phrase string
		want   bool
	}{
		{name: "whole word", text: "sara walks in", phrase: "sara", want: true},
		{name: "inside a word", text: "sarah walks in", phrase: "sara", want: false},
		{name: "later occurrence", text: "sarah and sara", phrase: "sara", want: true},
		{name: "empty phrase", text: "sara walks in", phrase: "", want: false},
		{name: "empty text", text: "", phrase: "sara", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, containsPhrase(tt.text, tt.phrase))
		})
	}
}
