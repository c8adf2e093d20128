// Package workspace builds per-agent isolated skill views: one directory
// per agent under a dedicated workspaces root, holding absolute symlinks to
// only the skill folders that agent is authorized to use.
//
// The workspaces root must live outside the main project tree (config
// validation enforces this). Agent tooling discovers skills by walking
// upward from its working directory, so a view nested under the project
// would let an agent reach the unrestricted skill store.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/guildhall-ai/guildhall/internal/skills"
	"github.com/guildhall-ai/guildhall/internal/store"
)

// Layout under the workspaces root:
//
//	<root>/<agent_id>/.guild/skills/<folder> -> <main store>/<folder>
const (
	platformDirName = ".guild"
	skillsDirName   = "skills"
)

// Agent ids become path segments, so only a conservative charset is
// accepted. Store-assigned uuids always match.
var agentIDRE = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,127}$`)

// Builder rebuilds agent views from the authorization set it is handed. It
// reads skill records to resolve ids to folder names but never writes them.
type Builder struct {
	records *store.Store
	content *skills.Store
	root    string
	log     *slog.Logger
}

func NewBuilder(records *store.Store, content *skills.Store, workspacesRoot string, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{
		records: records,
		content: content,
		root:    filepath.Clean(strings.TrimSpace(workspacesRoot)),
		log:     log,
	}
}

// Root returns the isolated workspaces root.
func (b *Builder) Root() string {
	if b == nil {
		return ""
	}
	return b.root
}

// WorkspacePath returns the agent's isolated workspace directory. The path
// is derived, not checked for existence.
func (b *Builder) WorkspacePath(agentID string) string {
	return filepath.Join(b.root, agentID)
}

func (b *Builder) agentSkillsDir(agentID string) string {
	return filepath.Join(b.root, agentID, platformDirName, skillsDirName)
}

// Rebuild replaces the agent's skill view wholesale: the existing skills
// directory is removed, recreated empty, and repopulated with one absolute
// symlink per resolvable authorized skill. A missing source folder or a
// failed symlink drops that one entry with a warning; the rebuild itself
// only fails on setup errors (bad agent id, unreachable roots).
//
// The full delete-and-recreate makes rebuilds idempotent and immune to
// stale-link drift, at the cost of a brief window where the view is empty.
// Callers schedule rebuilds while the agent is idle.
func (b *Builder) Rebuild(ctx context.Context, agentID string, authorizedSkillIDs []string, allowAll bool) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	agentID = strings.TrimSpace(agentID)
	if !agentIDRE.MatchString(agentID) {
		return "", fmt.Errorf("invalid agent id %q", agentID)
	}

	if err := b.content.EnsureRoot(); err != nil {
		return "", err
	}
	if b.root == "" {
		return "", errors.New("workspace builder has no root")
	}
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return "", err
	}

	skillsDir := b.agentSkillsDir(agentID)
	if err := ensurePathWithinRoot(b.root, skillsDir); err != nil {
		return "", err
	}
	if err := os.RemoveAll(skillsDir); err != nil {
		return "", fmt.Errorf("reset agent skills dir: %w", err)
	}
	if err := os.MkdirAll(skillsDir, 0o755); err != nil {
		return "", err
	}

	names := b.resolveNames(ctx, authorizedSkillIDs, allowAll)

	linked := 0
	for _, name := range names {
		source := filepath.Join(b.content.Root(), name)
		if _, err := os.Stat(source); err != nil {
			b.log.Warn("workspace rebuild: skill folder missing in main store", "agent", agentID, "folder", name)
			continue
		}
		target, err := absoluteResolved(source)
		if err != nil {
			b.log.Warn("workspace rebuild: cannot resolve source path", "agent", agentID, "folder", name, "error", err)
			continue
		}
		if err := os.Symlink(target, filepath.Join(skillsDir, name)); err != nil {
			b.log.Warn("workspace rebuild: symlink failed", "agent", agentID, "folder", name, "error", err)
			continue
		}
		linked++
	}

	b.log.Info("rebuilt agent workspace", "agent", agentID, "linked", linked, "allow_all", allowAll)
	return b.WorkspacePath(agentID), nil
}

// AuthorizedNames resolves the authorization set to skill folder names
// without touching the agent's view. Permission checks use this to compare
// against what the agent reports.
func (b *Builder) AuthorizedNames(ctx context.Context, authorizedSkillIDs []string, allowAll bool) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return b.resolveNames(ctx, authorizedSkillIDs, allowAll), nil
}

// Delete removes the agent's entire isolated workspace. Deleting a
// workspace that was never built is a no-op.
func (b *Builder) Delete(agentID string) error {
	agentID = strings.TrimSpace(agentID)
	if !agentIDRE.MatchString(agentID) {
		return fmt.Errorf("invalid agent id %q", agentID)
	}
	ws := b.WorkspacePath(agentID)
	if err := ensurePathWithinRoot(b.root, ws); err != nil {
		return err
	}
	if err := os.RemoveAll(ws); err != nil {
		return err
	}
	b.log.Debug("deleted agent workspace", "agent", agentID)
	return nil
}

// Exists reports whether the agent's workspace directory is present.
func (b *Builder) Exists(agentID string) bool {
	agentID = strings.TrimSpace(agentID)
	if !agentIDRE.MatchString(agentID) {
		return false
	}
	_, err := os.Stat(b.WorkspacePath(agentID))
	return err == nil
}

// resolveNames maps the authorization set to folder names under the main
// store. allowAll short-circuits to everything the store currently holds.
// Ids that fail to resolve are dropped with a warning each; resolution
// itself never fails.
func (b *Builder) resolveNames(ctx context.Context, skillIDs []string, allowAll bool) []string {
	if allowAll {
		names, err := b.content.ListFolders()
		if err != nil {
			b.log.Warn("workspace: cannot list main skill store", "error", err)
			return []string{}
		}
		return names
	}

	names := make([]string, 0, len(skillIDs))
	seen := make(map[string]bool, len(skillIDs))
	for _, id := range skillIDs {
		name, ok := b.folderForSkill(ctx, id)
		if !ok {
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// folderForSkill derives the canonical folder name for a skill record: the
// /skills/<folder>/ segment of its blob location, falling back to the
// sanitized display name when no location is set. Anything that does not
// survive folder-name validation is rejected; a tampered location must not
// become a path component.
func (b *Builder) folderForSkill(ctx context.Context, skillID string) (string, bool) {
	rec, err := b.records.GetSkill(ctx, skillID)
	if err != nil {
		b.log.Warn("workspace: skill lookup failed", "id", skillID, "error", err)
		return "", false
	}
	if rec == nil {
		b.log.Warn("workspace: skill id does not resolve", "id", skillID)
		return "", false
	}

	name, ok := skills.FolderFromLocation(rec.BlobLocation)
	if !ok {
		name = skills.SanitizeFolderName(rec.Name)
	}
	if !skills.ValidFolderName(name) {
		b.log.Warn("workspace: skill folder name unusable", "id", skillID, "folder", name)
		return "", false
	}
	return name, true
}

// absoluteResolved returns the absolute path with symlinks resolved, so a
// link in the agent view never depends on the view's own depth or on
// intermediate links inside the store path.
func absoluteResolved(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs, nil
	}
	return resolved, nil
}

func ensurePathWithinRoot(root string, target string) error {
	root = filepath.Clean(strings.TrimSpace(root))
	target = filepath.Clean(strings.TrimSpace(target))
	if root == "" || target == "" {
		return fmt.Errorf("empty path")
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return err
	}
	rel = filepath.Clean(rel)
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("path escapes root")
	}
	return nil
}
