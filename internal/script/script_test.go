package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainText(t *testing.T) {
	src := "Sara walks in. She sits down. She orders chai.\n\nRavi arrives late. He waves."

	paras := Parse(src)
	require.Len(t, paras, 2)

	require.Len(t, paras[0].Scenes, 2)
	assert.Equal(t, "p1-s1", paras[0].Scenes[0].ID)
	assert.Equal(t, "Sara walks in. She sits down.", paras[0].Scenes[0].Action)
	assert.Equal(t, "p1-s2", paras[0].Scenes[1].ID)
	assert.Equal(t, "She orders chai.", paras[0].Scenes[1].Action)

	require.Len(t, paras[1].Scenes, 1)
	assert.Equal(t, "p2-s1", paras[1].Scenes[0].ID)
	assert.Equal(t, 2, paras[1].Scenes[0].Paragraph)
	assert.Equal(t, 1, paras[1].Scenes[0].Index)
}

func TestParseMarkdown(t *testing.T) {
	src := "# The Dhaba\n\n" +
		"Sara **walks** into the dhaba.\nThe rain stops.\n\n" +
		"```\nignored code. not a scene.\n```\n\n" +
		"- Ravi pours tea.\n- Sara smiles.\n\n" +
		"---\n\n" +
		"> The night falls.\n"

	paras := Parse(src)
	var texts []string
	for _, p := range paras {
		texts = append(texts, p.Text)
	}
	assert.Equal(t, []string{
		"Sara walks into the dhaba. The rain stops.",
		"Ravi pours tea.",
		"Sara smiles.",
		"The night falls.",
	}, texts)

	for i, p := range paras {
		assert.Equal(t, i+1, p.Index)
	}
}

func TestParseEmpty(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("# Only a title\n"))
}

func TestScenesFlatten(t *testing.T) {
	paras := Parse("A. B. C.\n\nD.")
	ids := []string{}
	for _, s := range Scenes(paras) {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"p1-s1", "p1-s2", "p2-s1"}, ids)
}

func TestScenePrompts(t *testing.T) {
	prev := Scene{Action: "Sara walks in."}
	s := Scene{Action: "She sits down."}

	assert.Contains(t, s.StartPrompt(), "She sits down.")
	assert.Contains(t, s.EndPrompt(), "She sits down.")
	assert.Contains(t, s.VideoPrompt(), "She sits down.")
	assert.NotEqual(t, s.StartPrompt(), s.EndPrompt())
	tp := s.TransitionPrompt(prev)
	assert.Contains(t, tp, "Sara walks in.")
	assert.Contains(t, tp, "She sits down.")
}
