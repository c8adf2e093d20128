//go:build !windows

package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestHoldWritesOwnerPid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	g, err := Hold(dir)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	defer g.Release()

	b, err := os.ReadFile(g.Path())
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if got := strings.TrimSpace(string(b)); got != strconv.Itoa(os.Getpid()) {
		t.Fatalf("lock file pid = %q, want %d", got, os.Getpid())
	}
}

func TestSecondHoldReportsHolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	g, err := Hold(dir)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	defer g.Release()

	_, err = Hold(dir)
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("second Hold error = %v, want ErrHeld", err)
	}
	if !strings.Contains(err.Error(), strconv.Itoa(os.Getpid())) {
		t.Fatalf("error does not name the holder pid: %v", err)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	g, err := Hold(dir)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("second Release should be a no-op, got %v", err)
	}

	g2, err := Hold(dir)
	if err != nil {
		t.Fatalf("Hold after Release: %v", err)
	}
	defer g2.Release()
}

func TestHoldCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "data")
	g, err := Hold(dir)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	defer g.Release()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("data dir was not created: %v", err)
	}
}
