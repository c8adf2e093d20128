package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Addr == "" || cfg.DataDir == "" || cfg.ProjectRoot == "" || cfg.WorkspacesRoot == "" {
		t.Fatalf("default config left required fields empty: %+v", cfg)
	}
}

func TestValidateRejectsNestedWorkspacesRoot(t *testing.T) {
	cfg := Default()
	cfg.ProjectRoot = filepath.Join(t.TempDir(), "project")
	cfg.WorkspacesRoot = filepath.Join(cfg.ProjectRoot, "agents")
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error for workspaces root inside project root")
	}
	if !strings.Contains(err.Error(), "workspaces_root") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAllowsSiblingWorkspacesRoot(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.ProjectRoot = filepath.Join(base, "project")
	cfg.WorkspacesRoot = filepath.Join(base, "agent-workspaces")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GUILDHALL_ADDR", "0.0.0.0:9999")
	t.Setenv("GUILDHALL_LOG_FORMAT", "json")
	t.Setenv("GUILDHALL_ALLOWED_ORIGINS", "http://localhost:1420, http://localhost:3000")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Addr != "0.0.0.0:9999" {
		t.Fatalf("addr override not applied: %q", cfg.Addr)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("log format override not applied: %q", cfg.LogFormat)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://localhost:3000" {
		t.Fatalf("origins override not applied: %v", cfg.AllowedOrigins)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != Default().Addr {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Addr = "127.0.0.1:7777"
	cfg.ProjectRoot = filepath.Join(dir, "project")
	cfg.WorkspacesRoot = filepath.Join(dir, "agents")
	cfg.AllowedOrigins = []string{"http://localhost:1420"}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Addr != "127.0.0.1:7777" {
		t.Fatalf("addr lost on round trip: %q", loaded.Addr)
	}
	if loaded.WorkspacesRoot != cfg.WorkspacesRoot {
		t.Fatalf("workspaces root lost on round trip: %q", loaded.WorkspacesRoot)
	}
}

func TestSkillStoreDir(t *testing.T) {
	cfg := &Config{ProjectRoot: "/srv/project"}
	got := cfg.SkillStoreDir()
	want := filepath.Join("/srv/project", ".guild", "skills")
	if got != want {
		t.Fatalf("SkillStoreDir=%q want %q", got, want)
	}
}
