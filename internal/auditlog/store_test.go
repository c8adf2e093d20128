package auditlog

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "audit"), slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAppendAndListNewestFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	s.Append(Entry{Action: "plugin_install", PluginName: "todo-tools"})
	s.Append(Entry{Action: "plugin_update", PluginName: "todo-tools"})
	s.Append(Entry{Action: "workspace_rebuild", AgentID: "agent-1"})

	got := s.List(10)
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	if got[0].Action != "workspace_rebuild" || got[2].Action != "plugin_install" {
		t.Fatalf("order = [%s %s %s], want newest first", got[0].Action, got[1].Action, got[2].Action)
	}
	for _, e := range got {
		if e.CreatedAt == "" {
			t.Fatalf("entry %q missing timestamp", e.Action)
		}
		if e.Status != StatusSuccess {
			t.Fatalf("entry %q status = %q, want defaulted success", e.Action, e.Status)
		}
	}
}

func TestListHonorsLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		s.Append(Entry{Action: "plugin_install"})
	}
	if got := s.List(2); len(got) != 2 {
		t.Fatalf("entries = %d, want limit 2", len(got))
	}
}

func TestFailureEntriesKeepDiagnostics(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	s.Append(Entry{
		Action:    "plugin_install",
		Status:    StatusFailure,
		Error:     "fetch https://github.com/acme/gone.git@main: repository not found",
		SourceURL: "https://github.com/acme/gone.git",
	})

	got := s.List(1)
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	if got[0].Status != StatusFailure || !strings.Contains(got[0].Error, "repository not found") {
		t.Fatalf("failure entry lost its diagnostic: %+v", got[0])
	}
}

func TestRotationKeepsRecentEntries(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.maxBytes = 256

	for i := 0; i < 50; i++ {
		s.Append(Entry{Action: "workspace_rebuild", AgentID: "agent-1", Detail: map[string]any{"seq": i}})
	}

	got := s.List(1000)
	if len(got) == 0 {
		t.Fatal("rotation lost every entry")
	}
	// The newest entry survives rotation and comes back first.
	if seq, ok := got[0].Detail["seq"].(float64); !ok || int(seq) != 49 {
		t.Fatalf("newest entry = %+v, want seq 49", got[0].Detail)
	}
	// Entries beyond the backup horizon age out.
	if len(got) == 50 {
		t.Fatal("no entry aged out despite rotation")
	}
	files, err := filepath.Glob(filepath.Join(s.dir, rotatedPrefix+"*.jsonl"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 || len(files) > s.backups {
		t.Fatalf("rotated files = %d, want 1..%d", len(files), s.backups)
	}
}

func TestNilStoreIsInert(t *testing.T) {
	t.Parallel()
	var s *Store
	s.Append(Entry{Action: "plugin_install"})
	if got := s.List(10); got != nil {
		t.Fatalf("nil store listed %v", got)
	}
}
