// Package auditlog keeps an append-only trail of lifecycle events: plugin
// installs, updates, uninstalls, workspace rebuilds, settings changes. One
// JSON object per line, size-rotated, never consulted on the hot path.
package auditlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	maxFileBytes = int64(4 << 20)
	maxBackups   = 3

	activeName    = "audit.jsonl"
	rotatedPrefix = "audit-"

	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is one recorded event. Action is a short stable identifier such as
// "plugin_install" or "workspace_rebuild". Detail carries small
// action-specific values; secrets never belong here.
type Entry struct {
	CreatedAt string `json:"created_at"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`

	PluginID   string `json:"plugin_id,omitempty"`
	PluginName string `json:"plugin_name,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`

	Detail map[string]any `json:"detail,omitempty"`
}

// Store appends entries to <dir>/audit.jsonl and rotates the file past the
// size threshold, keeping a few backups. Appends are best-effort: an audit
// write failure is logged and never propagates to the operation it records.
type Store struct {
	log *slog.Logger

	dir        string
	activePath string

	maxBytes int64
	backups  int

	mu sync.Mutex
}

func New(dir string, log *slog.Logger) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("missing audit directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	activePath := filepath.Join(dir, activeName)
	f, err := os.OpenFile(activePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	_ = f.Close()

	return &Store{
		log:        log,
		dir:        dir,
		activePath: activePath,
		maxBytes:   maxFileBytes,
		backups:    maxBackups,
	}, nil
}

func (s *Store) Append(e Entry) {
	if s == nil {
		return
	}

	if strings.TrimSpace(e.CreatedAt) == "" {
		e.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if strings.TrimSpace(e.Status) == "" {
		e.Status = StatusSuccess
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.activePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.log.Warn("audit append failed", "error", err)
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&e); err != nil {
		s.log.Warn("audit encode failed", "error", err)
		return
	}

	s.rotateLocked()
}

// List returns up to limit entries, newest first, reading the active file
// before rotated ones. Unreadable files are skipped.
func (s *Store) List(limit int) []Entry {
	if s == nil {
		return nil
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}

	s.mu.Lock()
	files := s.filesNewestFirstLocked()
	s.mu.Unlock()

	out := make([]Entry, 0, limit)
	for _, path := range files {
		if len(out) >= limit {
			break
		}
		entries, err := readNewestFirst(path, limit-len(out))
		if err != nil {
			s.log.Warn("audit read failed", "path", path, "error", err)
			continue
		}
		out = append(out, entries...)
	}
	return out
}

func (s *Store) filesNewestFirstLocked() []string {
	paths := []string{s.activePath}

	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return paths
	}
	var rotated []string
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if !strings.HasPrefix(name, rotatedPrefix) || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		rotated = append(rotated, filepath.Join(s.dir, name))
	}
	// Rotated names embed UnixMilli, so the lexicographic order is the
	// chronological one.
	sort.Sort(sort.Reverse(sort.StringSlice(rotated)))
	return append(paths, rotated...)
}

func (s *Store) rotateLocked() {
	st, err := os.Stat(s.activePath)
	if err != nil || st.Size() <= s.maxBytes {
		return
	}

	dst := filepath.Join(s.dir, fmt.Sprintf("%s%d.jsonl", rotatedPrefix, time.Now().UnixMilli()))
	if err := os.Rename(s.activePath, dst); err != nil {
		s.log.Warn("audit rotate failed", "error", err)
		return
	}
	if f, err := os.OpenFile(s.activePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600); err == nil {
		_ = f.Close()
	}

	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	var rotated []string
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if !strings.HasPrefix(name, rotatedPrefix) || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		rotated = append(rotated, name)
	}
	if len(rotated) <= s.backups {
		return
	}
	sort.Strings(rotated)
	for _, name := range rotated[:len(rotated)-s.backups] {
		_ = os.Remove(filepath.Join(s.dir, name))
	}
}

func readNewestFirst(path string, limit int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var entries []Entry
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
