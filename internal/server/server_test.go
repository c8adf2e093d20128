package server

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/guildhall-ai/guildhall/internal/config"
	"github.com/guildhall-ai/guildhall/internal/lockfile"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		Addr:           "127.0.0.1:0",
		DataDir:        filepath.Join(base, "data"),
		ProjectRoot:    filepath.Join(base, "project"),
		WorkspacesRoot: filepath.Join(base, "workspaces"),
		LogFormat:      "text",
		LogLevel:       "error",
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.WorkspacesRoot = filepath.Join(cfg.ProjectRoot, "workspaces")

	if _, err := New(Options{Config: cfg, Version: "test"}); err == nil {
		t.Fatal("expected error for workspaces root inside project root")
	}
}

func TestNewRejectsUnknownLogLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogLevel = "loud"

	if _, err := New(Options{Config: cfg, Version: "test"}); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestNewRefusesBusyDataDir(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(Options{Config: cfg, Version: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	_, err = New(Options{Config: cfg, Version: "test"})
	if !errors.Is(err, lockfile.ErrHeld) {
		t.Fatalf("second New error = %v, want ErrHeld", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(Options{Config: cfg, Version: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Run released the claim on exit, so the data dir is reusable.
	s2, err := New(Options{Config: cfg, Version: "test"})
	if err != nil {
		t.Fatalf("New after Run: %v", err)
	}
	s2.Close()
}
