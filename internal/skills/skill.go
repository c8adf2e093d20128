// Package skills owns skill content: parsing SKILL.md descriptors and
// storing canonical skill folders in the main store under the project tree.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is what a SKILL.md descriptor declares about its skill.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Author      string `json:"author"`
}

type skillFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	Author      string `yaml:"author"`
}

var folderNameRE = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// ValidFolderName reports whether name is safe to use as a skill folder
// under the store root.
func ValidFolderName(name string) bool {
	return folderNameRE.MatchString(name)
}

// SanitizeFolderName lowercases a display name and replaces anything outside
// [a-zA-Z0-9_-] with a dash. Used when a skill record has no location token
// to derive its folder from.
func SanitizeFolderName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// ParseSkillFile reads a SKILL.md descriptor: YAML frontmatter between ---
// fences followed by a markdown body. Name and description are required;
// version defaults to "1.0.0" and author to "unknown".
func ParseSkillFile(path string) (Metadata, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, "", err
	}
	frontmatterRaw, body, ok := splitFrontmatter(string(content))
	if !ok {
		return Metadata{}, "", fmt.Errorf("missing frontmatter in %s", filepath.Base(path))
	}
	var fm skillFrontmatter
	if err := yaml.Unmarshal([]byte(frontmatterRaw), &fm); err != nil {
		return Metadata{}, "", fmt.Errorf("invalid frontmatter in %s: %w", filepath.Base(path), err)
	}
	fm.Name = strings.TrimSpace(fm.Name)
	fm.Description = strings.TrimSpace(fm.Description)
	if fm.Name == "" || fm.Description == "" {
		return Metadata{}, "", fmt.Errorf("frontmatter in %s must declare name and description", filepath.Base(path))
	}
	meta := Metadata{
		Name:        fm.Name,
		Description: fm.Description,
		Version:     strings.TrimSpace(fm.Version),
		Author:      strings.TrimSpace(fm.Author),
	}
	if meta.Version == "" {
		meta.Version = "1.0.0"
	}
	if meta.Author == "" {
		meta.Author = "unknown"
	}
	return meta, body, nil
}

func splitFrontmatter(raw string) (frontmatter string, body string, ok bool) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	if !strings.HasPrefix(raw, "---\n") {
		return "", strings.TrimSpace(raw), false
	}
	lines := strings.Split(raw, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end <= 0 {
		return "", strings.TrimSpace(raw), false
	}
	front := strings.Join(lines[1:end], "\n")
	bodyPart := ""
	if end+1 < len(lines) {
		bodyPart = strings.Join(lines[end+1:], "\n")
	}
	return strings.TrimSpace(front), strings.TrimSpace(bodyPart), true
}
