package plugins

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor is the resolved identity of a staged plugin repository. It
// lives for one lifecycle operation only; nothing persists it.
type Descriptor struct {
	Name        string
	Version     string
	Description string
	Author      string
	// Skills lists the declared skill folder names. Empty means every
	// subfolder of the skills directory.
	Skills []string
	// Marketplace is set when the repository declares itself a marketplace
	// (a catalog of plugins rather than a single plugin).
	Marketplace string
}

const (
	descriptorFile  = "plugin.yaml"
	marketplacePath = ".guild-plugin/marketplace.json"
	skillsDirName   = "skills"
)

// Resolver turns a staged repository tree into a Descriptor, via the
// explicit plugin.yaml or filesystem auto-detection. It never touches the
// network.
type Resolver struct {
	log *slog.Logger
}

func NewResolver(log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{log: log}
}

func (r *Resolver) Resolve(stagePath string, sourceURL string) (*Descriptor, error) {
	stagePath = filepath.Clean(strings.TrimSpace(stagePath))
	if stagePath == "" {
		return nil, &ValidationError{Message: "missing staged repository path"}
	}

	marketplace := r.detectMarketplace(stagePath)

	if _, err := os.Stat(filepath.Join(stagePath, descriptorFile)); err == nil {
		desc, err := parseDescriptorFile(filepath.Join(stagePath, descriptorFile))
		if err != nil {
			return nil, err
		}
		desc.Marketplace = marketplace
		return desc, nil
	}

	desc, err := r.autoDetect(stagePath, sourceURL)
	if err != nil {
		return nil, err
	}
	desc.Marketplace = marketplace
	return desc, nil
}

type marketplaceFile struct {
	Name string `json:"name"`
}

// detectMarketplace reads the reserved marketplace descriptor. Failure here
// is never fatal: a broken marketplace file still leaves a resolvable
// plugin.
func (r *Resolver) detectMarketplace(stagePath string) string {
	path := filepath.Join(stagePath, filepath.FromSlash(marketplacePath))
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn("marketplace descriptor unreadable", "path", path, "error", err)
		}
		return ""
	}
	var mf marketplaceFile
	if err := json.Unmarshal(b, &mf); err != nil {
		r.log.Warn("marketplace descriptor invalid", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(mf.Name)
}

type descriptorYAML struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Author      string   `yaml:"author"`
	Skills      []string `yaml:"skills"`
}

func parseDescriptorFile(path string) (*Descriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("unreadable %s: %v", descriptorFile, err)}
	}
	var dy descriptorYAML
	if err := yaml.Unmarshal(b, &dy); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid %s: %v", descriptorFile, err)}
	}

	var missing []string
	if strings.TrimSpace(dy.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(dy.Version) == "" {
		missing = append(missing, "version")
	}
	if strings.TrimSpace(dy.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	author := strings.TrimSpace(dy.Author)
	if author == "" {
		author = "unknown"
	}
	skills := make([]string, 0, len(dy.Skills))
	for _, s := range dy.Skills {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}

	return &Descriptor{
		Name:        strings.TrimSpace(dy.Name),
		Version:     strings.TrimSpace(dy.Version),
		Description: strings.TrimSpace(dy.Description),
		Author:      author,
		Skills:      skills,
	}, nil
}

// autoDetect derives a descriptor from the tree itself: a skills directory
// with SKILL.md-bearing subfolders, a name from the source URL, and a
// description from the README when one offers a usable line.
func (r *Resolver) autoDetect(stagePath string, sourceURL string) (*Descriptor, error) {
	skillsDir := filepath.Join(stagePath, skillsDirName)
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ValidationError{Message: fmt.Sprintf("repository has no %s and no %s directory", descriptorFile, skillsDirName)}
		}
		return nil, &ValidationError{Message: fmt.Sprintf("unreadable %s directory: %v", skillsDirName, err)}
	}

	detected := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(skillsDir, entry.Name(), "SKILL.md")); err != nil {
			continue
		}
		detected = append(detected, entry.Name())
	}
	if len(detected) == 0 {
		return nil, &ValidationError{Message: fmt.Sprintf("no skill folders with SKILL.md under %s", skillsDirName)}
	}

	description := readmeDescription(filepath.Join(stagePath, "README.md"))
	if description == "" {
		description = fmt.Sprintf("Plugin with %d skill(s)", len(detected))
	}

	return &Descriptor{
		Name:        repoNameFromURL(sourceURL),
		Version:     "1.0.0",
		Description: description,
		Author:      "unknown",
		Skills:      detected,
	}, nil
}

var repoNameRE = regexp.MustCompile(`[/:]([^/:]+)/([^/]+?)(?:\.git)?$`)

// repoNameFromURL derives a plugin name from the repository URL's final
// path segment, stripping a trailing .git.
func repoNameFromURL(sourceURL string) string {
	sourceURL = strings.TrimRight(strings.TrimSpace(sourceURL), "/")
	if m := repoNameRE.FindStringSubmatch(sourceURL); len(m) == 3 {
		return m[2]
	}
	name := sourceURL
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".git")
	if name == "" {
		return "plugin"
	}
	return name
}

// readmeDescription returns the README's first non-empty, non-heading line,
// truncated to 200 characters.
func readmeDescription(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) > 200 {
			line = line[:200]
		}
		return line
	}
	return ""
}
