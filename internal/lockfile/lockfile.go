// Package lockfile enforces single-daemon ownership of a data directory.
// The skill store and the sqlite database tolerate exactly one writer; a
// second guildhalld pointed at the same directory must refuse to start
// instead of corrupting either.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const lockName = "guildhalld.lock"

// ErrHeld indicates another process owns the data directory.
var ErrHeld = errors.New("data directory already in use")

// Guard is an exclusive claim on a data directory, backed by an advisory
// file lock the OS drops automatically when the process dies.
type Guard struct {
	path string
	f    *os.File
}

// Hold claims dir for this process, creating it when absent. A conflict
// reports ErrHeld, annotated with the owning pid when it can be read.
func Hold(dir string) (*Guard, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("lock directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, lockName)
	f, err := acquire(path)
	if err != nil {
		if errors.Is(err, ErrHeld) {
			if pid := readOwner(path); pid != "" {
				err = fmt.Errorf("%w (pid %s)", ErrHeld, pid)
			}
		}
		return nil, err
	}

	// The recorded pid is advisory, for operators staring at a stale lock.
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Sync()

	return &Guard{path: path, f: f}, nil
}

func readOwner(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// Path is the lock file location.
func (g *Guard) Path() string {
	if g == nil {
		return ""
	}
	return g.path
}

// Release drops the claim. Safe to call more than once.
func (g *Guard) Release() error {
	if g == nil || g.f == nil {
		return nil
	}
	f := g.f
	g.f = nil
	return release(f)
}
