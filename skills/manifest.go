package skills

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const ManifestName = "SKILL.md"

// Manifest is the YAML frontmatter of a SKILL.md file.
type Manifest struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	License     string `yaml:"license,omitempty"`
}

// ParseManifest splits SKILL.md content into frontmatter and body.
func ParseManifest(content string) (Manifest, string, error) {
	var m Manifest

	trimmed := strings.ReplaceAll(strings.TrimLeft(content, "\ufeff"), "\r\n", "\n")
	if !strings.HasPrefix(trimmed, "---\n") {
		return m, "", errors.New("SKILL.md must start with YAML frontmatter")
	}

	rest := trimmed[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return m, "", errors.New("SKILL.md frontmatter terminator missing")
	}
	front := rest[:end]
	body := strings.TrimPrefix(rest[end+len("\n---"):], "\n")

	if err := yaml.Unmarshal([]byte(front), &m); err != nil {
		return m, "", fmt.Errorf("SKILL.md frontmatter is invalid: %w", err)
	}
	m.Name = strings.TrimSpace(m.Name)
	m.Description = strings.TrimSpace(m.Description)
	if m.Name == "" {
		return m, "", errors.New("SKILL.md frontmatter has no name")
	}
	return m, strings.TrimSpace(body), nil
}
