package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store keeps the canonical skill folders under the main skill store
// (<project_root>/.guild/skills). It implements the skill-content contract
// the installation pipeline depends on: extract metadata, persist a folder,
// delete a folder.
//
// Persist returns a location token of the form
//
//	store://skills/<folder>/<rev>
//
// where rev changes on every persist. The folder segment is what the
// workspace builder extracts when materializing an agent's view.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(strings.TrimSpace(root))}
}

func (s *Store) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

func (s *Store) EnsureRoot() error {
	if s == nil || s.root == "" {
		return errors.New("skill store has no root")
	}
	return os.MkdirAll(s.root, 0o755)
}

// ExtractMetadata parses the SKILL.md descriptor inside folder.
func (s *Store) ExtractMetadata(folder string) (Metadata, error) {
	folder = filepath.Clean(strings.TrimSpace(folder))
	if folder == "" {
		return Metadata{}, errors.New("missing skill folder")
	}
	meta, _, err := ParseSkillFile(filepath.Join(folder, "SKILL.md"))
	return meta, err
}

// Persist copies folder into the store as <root>/<name>, replacing any
// previous content atomically: the copy lands in a staging sibling first,
// then a rename swap moves it into place (with a backup restore if the swap
// fails halfway).
func (s *Store) Persist(name string, folder string) (string, error) {
	if s == nil || s.root == "" {
		return "", errors.New("skill store has no root")
	}
	name = strings.TrimSpace(name)
	if !ValidFolderName(name) {
		return "", fmt.Errorf("invalid skill folder name %q", name)
	}
	folder = filepath.Clean(strings.TrimSpace(folder))
	if _, err := os.Stat(filepath.Join(folder, "SKILL.md")); err != nil {
		return "", fmt.Errorf("skill folder %s has no SKILL.md: %w", folder, err)
	}
	if err := s.EnsureRoot(); err != nil {
		return "", err
	}

	target := filepath.Join(s.root, name)
	if err := ensurePathWithinRoot(s.root, target); err != nil {
		return "", err
	}

	staging := target + ".incoming." + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := copyDirectory(folder, staging); err != nil {
		return "", fmt.Errorf("stage skill %s: %w", name, err)
	}
	defer os.RemoveAll(staging)

	_, statErr := os.Stat(target)
	targetExists := statErr == nil
	if statErr != nil && !os.IsNotExist(statErr) {
		return "", statErr
	}
	if !targetExists {
		if err := os.Rename(staging, target); err != nil {
			return "", fmt.Errorf("install skill %s: %w", name, err)
		}
		return newLocationToken(name), nil
	}

	backup := target + ".backup." + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.Rename(target, backup); err != nil {
		return "", fmt.Errorf("back up skill %s: %w", name, err)
	}
	if err := os.Rename(staging, target); err != nil {
		_ = os.Rename(backup, target)
		return "", fmt.Errorf("replace skill %s: %w", name, err)
	}
	_ = os.RemoveAll(backup)
	return newLocationToken(name), nil
}

// ListFolders returns the names of every canonical skill folder: a direct
// child of the store root that carries a SKILL.md. Dot-directories are
// ignored. A missing root means an empty store, not an error.
func (s *Store) ListFolders() ([]string, error) {
	if s == nil || s.root == "" {
		return nil, errors.New("skill store has no root")
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, entry.Name(), "SKILL.md")); err != nil {
			continue
		}
		out = append(out, entry.Name())
	}
	return out, nil
}

// Delete removes the canonical folder for name. Deleting a folder that is
// already gone is not an error.
func (s *Store) Delete(name string) error {
	if s == nil || s.root == "" {
		return errors.New("skill store has no root")
	}
	name = strings.TrimSpace(name)
	if !ValidFolderName(name) {
		return fmt.Errorf("invalid skill folder name %q", name)
	}
	target := filepath.Join(s.root, name)
	if err := ensurePathWithinRoot(s.root, target); err != nil {
		return err
	}
	return os.RemoveAll(target)
}

func newLocationToken(name string) string {
	return "store://skills/" + name + "/" + uuid.NewString()
}

var locationFolderRE = regexp.MustCompile(`/skills/([^/]+)/`)

// FolderFromLocation extracts the skill folder segment from a location
// token. It works on any location shaped like .../skills/<folder>/...,
// which keeps records from older blob backends resolvable.
func FolderFromLocation(location string) (string, bool) {
	m := locationFolderRE.FindStringSubmatch(strings.TrimSpace(location))
	if len(m) != 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}

func copyDirectory(src string, dst string) error {
	src = filepath.Clean(strings.TrimSpace(src))
	dst = filepath.Clean(strings.TrimSpace(dst))
	if src == "" || dst == "" {
		return fmt.Errorf("invalid copy directory arguments")
	}
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(pathAbs string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, pathAbs)
		if err != nil {
			return err
		}
		rel = filepath.Clean(rel)
		if rel == "." {
			return os.MkdirAll(dst, 0o755)
		}
		target := filepath.Join(dst, rel)
		if err := ensurePathWithinRoot(dst, target); err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		data, err := os.ReadFile(pathAbs)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o600)
	})
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
