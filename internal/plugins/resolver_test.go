package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeStageFile(t *testing.T, stage string, rel string, content string) {
	t.Helper()
	path := filepath.Join(stage, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestResolveDescriptorFile(t *testing.T) {
	t.Parallel()
	stage := t.TempDir()
	writeStageFile(t, stage, "plugin.yaml", `name: todo-tools
version: 1.2.0
description: Task management skills
author: Acme Labs
skills:
  - todo
  - reminders
`)

	desc, err := NewResolver(discardLogger()).Resolve(stage, "https://github.com/acme/todo-tools.git")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.Name != "todo-tools" || desc.Version != "1.2.0" || desc.Author != "Acme Labs" {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
	if desc.Description != "Task management skills" {
		t.Fatalf("description = %q", desc.Description)
	}
	if strings.Join(desc.Skills, ",") != "todo,reminders" {
		t.Fatalf("skills = %v", desc.Skills)
	}
	if desc.Marketplace != "" {
		t.Fatalf("marketplace = %q, want empty", desc.Marketplace)
	}
}

func TestResolveDescriptorDefaults(t *testing.T) {
	t.Parallel()
	stage := t.TempDir()
	writeStageFile(t, stage, "plugin.yaml", `name: todo-tools
version: 1.0.0
description: Tasks
`)

	desc, err := NewResolver(discardLogger()).Resolve(stage, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.Author != "unknown" {
		t.Fatalf("author = %q, want unknown", desc.Author)
	}
	if len(desc.Skills) != 0 {
		t.Fatalf("skills = %v, want empty (meaning all)", desc.Skills)
	}
}

func TestResolveDescriptorMissingFields(t *testing.T) {
	t.Parallel()
	stage := t.TempDir()
	writeStageFile(t, stage, "plugin.yaml", "name: todo-tools\n")

	_, err := NewResolver(discardLogger()).Resolve(stage, "")
	verr, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if strings.Join(verr.Missing, ",") != "version,description" {
		t.Fatalf("missing = %v, want version and description", verr.Missing)
	}
}

func TestResolveDescriptorInvalidYAML(t *testing.T) {
	t.Parallel()
	stage := t.TempDir()
	writeStageFile(t, stage, "plugin.yaml", "name: [unclosed\n")

	_, err := NewResolver(discardLogger()).Resolve(stage, "")
	if _, ok := AsValidationError(err); !ok {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestResolveMarketplace(t *testing.T) {
	t.Parallel()
	stage := t.TempDir()
	writeStageFile(t, stage, "plugin.yaml", "name: catalog\nversion: 1.0.0\ndescription: Catalog\n")
	writeStageFile(t, stage, ".guild-plugin/marketplace.json", `{"name": "Acme Marketplace"}`)

	desc, err := NewResolver(discardLogger()).Resolve(stage, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.Marketplace != "Acme Marketplace" {
		t.Fatalf("marketplace = %q", desc.Marketplace)
	}
}

func TestResolveMarketplaceBrokenFileIsIgnored(t *testing.T) {
	t.Parallel()
	stage := t.TempDir()
	writeStageFile(t, stage, "plugin.yaml", "name: catalog\nversion: 1.0.0\ndescription: Catalog\n")
	writeStageFile(t, stage, ".guild-plugin/marketplace.json", "{not json")

	desc, err := NewResolver(discardLogger()).Resolve(stage, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.Marketplace != "" {
		t.Fatalf("marketplace = %q, want empty for broken descriptor", desc.Marketplace)
	}
}

func TestResolveAutoDetect(t *testing.T) {
	t.Parallel()
	stage := t.TempDir()
	writeStageFile(t, stage, "README.md", "# Todo Tools\n\nSkills for managing task lists.\n")
	writeStageFile(t, stage, "skills/todo/SKILL.md", "---\nname: todo\ndescription: d\n---\n")
	writeStageFile(t, stage, "skills/reminders/SKILL.md", "---\nname: reminders\ndescription: d\n---\n")
	writeStageFile(t, stage, "skills/notes.txt", "not a folder")
	if err := os.MkdirAll(filepath.Join(stage, "skills", "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	desc, err := NewResolver(discardLogger()).Resolve(stage, "https://github.com/acme/todo-tools.git")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if desc.Name != "todo-tools" {
		t.Fatalf("name = %q, want repo-derived todo-tools", desc.Name)
	}
	if desc.Version != "1.0.0" || desc.Author != "unknown" {
		t.Fatalf("unexpected defaults: %+v", desc)
	}
	if desc.Description != "Skills for managing task lists." {
		t.Fatalf("description = %q, want README line", desc.Description)
	}
	got := append([]string(nil), desc.Skills...)
	if strings.Join(sorted(got), ",") != "reminders,todo" {
		t.Fatalf("skills = %v, want the SKILL.md-bearing folders", desc.Skills)
	}
}

func TestResolveAutoDetectWithoutReadme(t *testing.T) {
	t.Parallel()
	stage := t.TempDir()
	writeStageFile(t, stage, "skills/todo/SKILL.md", "---\nname: todo\ndescription: d\n---\n")

	desc, err := NewResolver(discardLogger()).Resolve(stage, "https://github.com/acme/solo.git")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(desc.Description, "1 skill") {
		t.Fatalf("description = %q, want synthesized count", desc.Description)
	}
}

func TestResolveNoDescriptorNoSkills(t *testing.T) {
	t.Parallel()
	_, err := NewResolver(discardLogger()).Resolve(t.TempDir(), "https://github.com/acme/empty.git")
	verr, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if !strings.Contains(verr.Error(), "skills") {
		t.Fatalf("error %q does not mention the skills directory", verr.Error())
	}
}

func TestRepoNameFromURL(t *testing.T) {
	t.Parallel()
	cases := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/todo-tools.git", "todo-tools"},
		{"https://github.com/acme/todo-tools", "todo-tools"},
		{"https://github.com/acme/todo-tools/", "todo-tools"},
		{"git@github.com:acme/todo-tools.git", "todo-tools"},
		{"https://gitlab.com/group/sub/repo.git", "repo"},
		{"todo-tools", "todo-tools"},
		{"", "plugin"},
	}
	for _, tc := range cases {
		if got := repoNameFromURL(tc.url); got != tc.want {
			t.Errorf("repoNameFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestReadmeDescriptionTruncates(t *testing.T) {
	t.Parallel()
	stage := t.TempDir()
	long := strings.Repeat("x", 250)
	writeStageFile(t, stage, "README.md", "# Heading\n\n"+long+"\n")

	got := readmeDescription(filepath.Join(stage, "README.md"))
	if len(got) != 200 {
		t.Fatalf("len = %d, want 200", len(got))
	}
}
