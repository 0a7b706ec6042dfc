package consistency

import (
	"fmt"
	"strings"
)

// renderConfig is prepended to every consistent prompt. It carries intent
// for the model, not profile data.
const renderConfig = `{
  "render_config": {
    "character_consistency": "maximum",
    "identity_lock": "strict",
    "preserve_identity": true,
    "suppress_randomness": true,
    "environment_consistency": "maximum",
    "background_lock": "strict",
    "style_consistency": "maximum"
  }
}`

const (
	identityInstruction    = "Preserve this exact identity: the same face, the same hair and the same clothing as the reference, with no variation."
	environmentInstruction = "Keep the background, lighting and weather continuous with the previous frames."
	sceneActionLabel       = "SCENE ACTION: "
)

// BuildConsistentPrompt wraps sceneAction with the render configuration and
// the identity and environment locks. Before analysis it returns
// sceneAction unchanged.
func (s *Store) BuildConsistentPrompt(sceneAction, characterName string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.set.AnalysisComplete {
		return sceneAction
	}

	blocks := []string{renderConfig}
	if c, ok := s.set.selectCharacter(characterName); ok {
		blocks = append(blocks, identityBlock(c))
	}
	if e, ok := s.set.selectEnvironment(sceneAction); ok {
		blocks = append(blocks, environmentBlock(e))
	}
	blocks = append(blocks, sceneActionLabel+sceneAction)
	return strings.Join(blocks, "\n\n")
}

func identityBlock(c CharacterProfile) string {
	return fmt.Sprintf("[IDENTITY LOCK: %s]\n%s: %s\n%s",
		c.Name, c.Name, c.Attributes, identityInstruction)
}

func environmentBlock(e EnvironmentProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[ENVIRONMENT LOCK: %s]\n", e.Name)
	fmt.Fprintf(&b, "Setting: %s\n", e.Description)
	fmt.Fprintf(&b, "Lighting: %s\n", e.Lighting)
	fmt.Fprintf(&b, "Time of day: %s\n", e.TimeOfDay)
	fmt.Fprintf(&b, "Weather: %s\n", e.Weather)
	b.WriteString(environmentInstruction)
	return b.String()
}
