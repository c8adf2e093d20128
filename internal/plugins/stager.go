package plugins

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Stager stages a remote repository into a local directory for inspection.
// The returned cleanup removes the staged tree; callers defer it so every
// exit path tears the directory down.
type Stager interface {
	Stage(ctx context.Context, sourceURL string, ref string) (path string, cleanup func(), err error)
}

// GitStager shells out to git for the fetch-and-checkout. The subprocess is
// treated as opaque: only its exit code and combined output are observed.
type GitStager struct {
	log *slog.Logger
}

func NewGitStager(log *slog.Logger) *GitStager {
	if log == nil {
		log = slog.Default()
	}
	return &GitStager{log: log}
}

// Stage clones a single shallow ref into a fresh ephemeral directory. On
// failure the directory is removed before returning and the FetchError
// carries the captured git output verbatim.
func (g *GitStager) Stage(ctx context.Context, sourceURL string, ref string) (string, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sourceURL = strings.TrimSpace(sourceURL)
	ref = strings.TrimSpace(ref)

	dir, err := os.MkdirTemp("", "guildhall-stage-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, sourceURL, dir)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		cleanup()
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return "", nil, &FetchError{URL: sourceURL, Ref: ref, Output: msg}
	}

	g.log.Debug("staged repository", "url", sourceURL, "ref", ref, "dir", dir)
	return dir, cleanup, nil
}
