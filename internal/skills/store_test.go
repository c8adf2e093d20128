package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkillFolder(t *testing.T, dir string, name string, skillMD string) string {
	t.Helper()
	folder := filepath.Join(dir, name)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", folder, err)
	}
	if err := os.WriteFile(filepath.Join(folder, "SKILL.md"), []byte(skillMD), 0o600); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	return folder
}

const validSkillMD = `---
name: web-search
description: Search the public web
version: 2.1.0
author: demo
---

# Web Search

Use this when the answer needs fresh data.
`

func TestParseSkillFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	folder := writeSkillFolder(t, dir, "web-search", validSkillMD)

	meta, body, err := ParseSkillFile(filepath.Join(folder, "SKILL.md"))
	if err != nil {
		t.Fatalf("ParseSkillFile: %v", err)
	}
	if meta.Name != "web-search" || meta.Description != "Search the public web" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.Version != "2.1.0" || meta.Author != "demo" {
		t.Fatalf("explicit fields not honored: %+v", meta)
	}
	if !strings.Contains(body, "fresh data") {
		t.Fatalf("body lost: %q", body)
	}
}

func TestParseSkillFileDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	folder := writeSkillFolder(t, dir, "s", "---\nname: s\ndescription: d\n---\nbody")

	meta, _, err := ParseSkillFile(filepath.Join(folder, "SKILL.md"))
	if err != nil {
		t.Fatalf("ParseSkillFile: %v", err)
	}
	if meta.Version != "1.0.0" {
		t.Fatalf("version default=%q want 1.0.0", meta.Version)
	}
	if meta.Author != "unknown" {
		t.Fatalf("author default=%q want unknown", meta.Author)
	}
}

func TestParseSkillFileRejectsIncomplete(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	noFront := writeSkillFolder(t, dir, "a", "# Just a heading\n")
	if _, _, err := ParseSkillFile(filepath.Join(noFront, "SKILL.md")); err == nil {
		t.Fatalf("expected error for missing frontmatter")
	}

	noDesc := writeSkillFolder(t, dir, "b", "---\nname: b\n---\nbody")
	if _, _, err := ParseSkillFile(filepath.Join(noDesc, "SKILL.md")); err == nil {
		t.Fatalf("expected error for missing description")
	}
}

func TestSanitizeFolderName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Web Search": "web-search",
		"PDF/Reader": "pdf-reader",
		"ok_name-9":  "ok_name-9",
		"  Spaced  ": "spaced",
		"C++ Helper": "c---helper",
	}
	for in, want := range cases {
		if got := SanitizeFolderName(in); got != want {
			t.Fatalf("SanitizeFolderName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestFolderFromLocation(t *testing.T) {
	t.Parallel()
	if f, ok := FolderFromLocation("store://skills/web-search/6f9619ff"); !ok || f != "web-search" {
		t.Fatalf("token parse failed: %q %v", f, ok)
	}
	if f, ok := FolderFromLocation("s3://bucket/skills/pdf-reader/v3/archive.zip"); !ok || f != "pdf-reader" {
		t.Fatalf("legacy location parse failed: %q %v", f, ok)
	}
	if _, ok := FolderFromLocation("store://other/web-search"); ok {
		t.Fatalf("expected no match without skills segment")
	}
	if _, ok := FolderFromLocation(""); ok {
		t.Fatalf("expected no match for empty location")
	}
}

func TestPersistAndDelete(t *testing.T) {
	t.Parallel()
	src := t.TempDir()
	folder := writeSkillFolder(t, src, "web-search", validSkillMD)
	if err := os.MkdirAll(filepath.Join(folder, "scripts"), 0o755); err != nil {
		t.Fatalf("mkdir scripts: %v", err)
	}
	if err := os.WriteFile(filepath.Join(folder, "scripts", "run.sh"), []byte("echo ok\n"), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}

	store := NewStore(filepath.Join(t.TempDir(), ".guild", "skills"))

	token, err := store.Persist("web-search", folder)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if name, ok := FolderFromLocation(token); !ok || name != "web-search" {
		t.Fatalf("token %q does not carry folder name", token)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "web-search", "scripts", "run.sh")); err != nil {
		t.Fatalf("nested file not persisted: %v", err)
	}

	meta, err := store.ExtractMetadata(filepath.Join(store.Root(), "web-search"))
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if meta.Name != "web-search" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	if err := store.Delete("web-search"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "web-search")); !os.IsNotExist(err) {
		t.Fatalf("folder survived delete: %v", err)
	}
	if err := store.Delete("web-search"); err != nil {
		t.Fatalf("Delete absent folder: %v", err)
	}
}

func TestPersistReplacesPreviousContent(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "skills"))

	srcA := writeSkillFolder(t, t.TempDir(), "tool", "---\nname: tool\ndescription: v1\n---\n")
	if err := os.WriteFile(filepath.Join(srcA, "old.txt"), []byte("old"), 0o600); err != nil {
		t.Fatalf("write old.txt: %v", err)
	}
	tokenA, err := store.Persist("tool", srcA)
	if err != nil {
		t.Fatalf("Persist v1: %v", err)
	}

	srcB := writeSkillFolder(t, t.TempDir(), "tool", "---\nname: tool\ndescription: v2\n---\n")
	tokenB, err := store.Persist("tool", srcB)
	if err != nil {
		t.Fatalf("Persist v2: %v", err)
	}

	if tokenA == tokenB {
		t.Fatalf("tokens should differ across persists")
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "tool", "old.txt")); !os.IsNotExist(err) {
		t.Fatalf("stale file survived replace: %v", err)
	}
	meta, err := store.ExtractMetadata(filepath.Join(store.Root(), "tool"))
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if meta.Description != "v2" {
		t.Fatalf("content not replaced: %+v", meta)
	}
}

func TestPersistRejectsUnsafeNames(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "skills"))
	folder := writeSkillFolder(t, t.TempDir(), "ok", "---\nname: ok\ndescription: d\n---\n")

	for _, name := range []string{"", "..", "a/b", ".hidden", "-lead", strings.Repeat("x", 65)} {
		if _, err := store.Persist(name, folder); err == nil {
			t.Fatalf("Persist accepted unsafe name %q", name)
		}
	}
	if err := store.Delete("../escape"); err == nil {
		t.Fatalf("Delete accepted unsafe name")
	}
}

func TestListFolders(t *testing.T) {
	t.Parallel()
	root := filepath.Join(t.TempDir(), "skills")
	store := NewStore(root)

	// Missing root reads as an empty store.
	names, err := store.ListFolders()
	if err != nil {
		t.Fatalf("ListFolders on missing root: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected empty store, got %v", names)
	}

	writeSkillFolder(t, root, "web-search", validSkillMD)
	writeSkillFolder(t, root, "pdf-reader", "---\nname: pdf-reader\ndescription: d\n---\n")
	// No SKILL.md: not a skill folder.
	if err := os.MkdirAll(filepath.Join(root, "scratch"), 0o755); err != nil {
		t.Fatalf("mkdir scratch: %v", err)
	}
	// Dot-directories are never skills.
	writeSkillFolder(t, root, ".staging", validSkillMD)
	// Loose files are ignored.
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write notes.txt: %v", err)
	}

	names, err = store.ListFolders()
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 folders, got %v", names)
	}
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["web-search"] || !found["pdf-reader"] {
		t.Fatalf("unexpected folder set: %v", names)
	}
}

func TestPersistRequiresSkillFile(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "skills"))
	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.MkdirAll(empty, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := store.Persist("empty", empty); err == nil {
		t.Fatalf("Persist accepted folder without SKILL.md")
	}
}
