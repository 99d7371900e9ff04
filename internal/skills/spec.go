// Package skills loads and matches SKILL.md capability descriptors.
// A skill is a declarative policy record — a YAML frontmatter header
// (name, description, tags, allowed tools, model override, model
// disable flag) followed by free-form instruction text. Skills are
// loaded once at startup and immutable for a run's duration.
package skills

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// Skill is an immutable descriptor parsed from a SKILL.md header.
type Skill struct {
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description" yaml:"description"`
	Tags          []string `json:"tags,omitempty" yaml:"tags"`
	AllowedTools  []string `json:"allowed_tools,omitempty" yaml:"allowed_tools"`
	ModelOverride string   `json:"model_override,omitempty" yaml:"model_override"`
	ModelDisabled bool     `json:"model_disabled,omitempty" yaml:"disable_model_invocation"`

	// Dir is the skill directory (parent of SKILL.md); Order is the
	// registration position, used as the deterministic tie-break.
	Dir   string `json:"dir,omitempty" yaml:"-"`
	Order int    `json:"-" yaml:"-"`
}

// ParseSkillMarkdown splits a SKILL.md document into its frontmatter
// and instruction body. The frontmatter is required and must name the
// skill.
func ParseSkillMarkdown(text string) (Skill, string, error) {
	trimmed := strings.TrimPrefix(text, "\uFEFF")
	if strings.TrimSpace(trimmed) == "" {
		return Skill{}, "", fmt.Errorf("skill markdown is empty")
	}

	lines := strings.Split(trimmed, "\n")
	if strings.TrimSpace(lines[0]) != frontmatterDelimiter {
		return Skill{}, "", fmt.Errorf("skill frontmatter is required")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelimiter {
			end = i
			break
		}
	}
	if end == -1 {
		return Skill{}, "", fmt.Errorf("skill frontmatter delimiter is not closed")
	}

	header := strings.Join(lines[1:end], "\n")
	body := strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")

	var sk Skill
	if err := yaml.Unmarshal([]byte(header), &sk); err != nil {
		return Skill{}, "", fmt.Errorf("invalid skill frontmatter: %w", err)
	}
	if sk.Name == "" {
		return Skill{}, "", fmt.Errorf("skill frontmatter missing name")
	}
	return sk, body, nil
}

// Policy-relevant fields rendered for logs and summaries.
func (s Skill) String() string {
	return fmt.Sprintf("%s (tools=%d, model_disabled=%v)", s.Name, len(s.AllowedTools), s.ModelDisabled)
}
