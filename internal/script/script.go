// Package script splits a story script into paragraphs and scenes. Input may
// be plain text or Markdown; headings and code are not part of the story.
package script

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/vampirenirmal/framesmith/internal/analyzer"
)

// MaxSentencesPerScene bounds how much action a single scene carries.
const MaxSentencesPerScene = 2

// Scene is one unit of generation: a start frame, an end frame and a clip.
type Scene struct {
	ID        string `json:"id"`
	Paragraph int    `json:"paragraph"`
	Index     int    `json:"index"`
	Action    string `json:"action"`
}

// StartPrompt describes the opening frame of the scene.
func (s Scene) StartPrompt() string {
	return "Opening frame: " + s.Action
}

// EndPrompt describes the closing frame of the scene.
func (s Scene) EndPrompt() string {
	return "Closing frame, moments later: " + s.Action
}

// VideoPrompt describes the motion between the two frames.
func (s Scene) VideoPrompt() string {
	return "Smooth continuous motion: " + s.Action
}

// TransitionPrompt describes the clip bridging prev into s.
func (s Scene) TransitionPrompt(prev Scene) string {
	return fmt.Sprintf("Seamless transition from %q to %q", prev.Action, s.Action)
}

// Paragraph is a run of scenes that are generated in order.
type Paragraph struct {
	Index  int     `json:"index"`
	Text   string  `json:"text"`
	Scenes []Scene `json:"scenes"`
}

// Parse extracts story paragraphs from src. Paragraph and scene indexes are
// 1-based.
func Parse(src string) []Paragraph {
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading, ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock, ast.KindThematicBreak:
			return ast.WalkSkipChildren, nil
		case ast.KindParagraph, ast.KindTextBlock:
			if t := blockText(n, source); t != "" {
				blocks = append(blocks, t)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	paragraphs := make([]Paragraph, 0, len(blocks))
	for _, block := range blocks {
		p := Paragraph{Index: len(paragraphs) + 1, Text: block}
		p.Scenes = splitScenes(p.Index, block)
		if len(p.Scenes) > 0 {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// Scenes flattens paragraphs in order.
func Scenes(paragraphs []Paragraph) []Scene {
	var out []Scene
	for _, p := range paragraphs {
		out = append(out, p.Scenes...)
	}
	return out
}

// blockText joins the lines of a leaf block into one line. Inline markup
// such as emphasis is dropped but its text is kept.
func blockText(n ast.Node, source []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(string(seg.Value(source))))
	}
	return stripInline(b.String())
}

var inlineMarkers = strings.NewReplacer("**", "", "__", "", "`", "")

func stripInline(s string) string {
	return strings.Join(strings.Fields(inlineMarkers.Replace(s)), " ")
}

func splitScenes(paragraph int, block string) []Scene {
	sentences := analyzer.Sentences(block)
	var scenes []Scene
	for i := 0; i < len(sentences); i += MaxSentencesPerScene {
		end := min(i+MaxSentencesPerScene, len(sentences))
		idx := len(scenes) + 1
		scenes = append(scenes, Scene{
			ID:        fmt.Sprintf("p%d-s%d", paragraph, idx),
			Paragraph: paragraph,
			Index:     idx,
			Action:    strings.Join(sentences[i:end], " "),
		})
	}
	return scenes
}
