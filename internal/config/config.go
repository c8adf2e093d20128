package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the on-disk configuration for guildhalld.
//
// NOTE: This file may contain a provider API key. Always keep it chmod 0600.
type Config struct {
	// Addr is the HTTP listen address (host:port).
	Addr string `json:"addr,omitempty"`

	// DataDir holds server state (sqlite database). If empty, the server
	// picks a default under the user home dir.
	DataDir string `json:"data_dir,omitempty"`

	// ProjectRoot is the main project tree. The canonical skill store lives
	// at <ProjectRoot>/.guild/skills.
	ProjectRoot string `json:"project_root,omitempty"`

	// WorkspacesRoot holds the per-agent isolated workspaces. It must not be
	// a descendant of ProjectRoot, or agent tooling walking upward from its
	// workspace would reach the unrestricted skill store.
	WorkspacesRoot string `json:"workspaces_root,omitempty"`

	// AllowedOrigins are the CORS origins accepted by the HTTP API.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`

	// ProviderBaseURL overrides the model provider endpoint handed to the
	// agent runtime.
	ProviderBaseURL string `json:"provider_base_url,omitempty"`
	// ProviderAPIKey seeds the runtime settings service at startup.
	ProviderAPIKey string `json:"provider_api_key,omitempty"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("missing addr")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("missing data_dir")
	}
	if strings.TrimSpace(c.ProjectRoot) == "" {
		return errors.New("missing project_root")
	}
	if strings.TrimSpace(c.WorkspacesRoot) == "" {
		return errors.New("missing workspaces_root")
	}
	if isDescendant(c.ProjectRoot, c.WorkspacesRoot) {
		return fmt.Errorf("workspaces_root %q must not be inside project_root %q", c.WorkspacesRoot, c.ProjectRoot)
	}
	return nil
}

// isDescendant reports whether child is parent or sits anywhere below it.
func isDescendant(parent, child string) bool {
	p, err := filepath.Abs(filepath.Clean(parent))
	if err != nil {
		return false
	}
	c, err := filepath.Abs(filepath.Clean(child))
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(p, c)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// Default returns a config populated with platform defaults. The workspaces
// root deliberately lives under the user cache dir, away from the project
// tree.
func Default() *Config {
	cfg := &Config{
		Addr:      "127.0.0.1:8421",
		LogFormat: "text",
		LogLevel:  "info",
	}

	home, err := os.UserHomeDir()
	if err == nil && strings.TrimSpace(home) != "" {
		cfg.DataDir = filepath.Join(home, ".guildhall")
		cfg.ProjectRoot = filepath.Join(home, ".guildhall", "project")
	} else {
		cfg.DataDir = "guildhall-data"
		cfg.ProjectRoot = filepath.Join("guildhall-data", "project")
	}

	cache, err := os.UserCacheDir()
	if err == nil && strings.TrimSpace(cache) != "" {
		cfg.WorkspacesRoot = filepath.Join(cache, "guildhall", "agent-workspaces")
	} else {
		cfg.WorkspacesRoot = filepath.Join(os.TempDir(), "guildhall-agent-workspaces")
	}

	return cfg
}

// ApplyEnv overlays GUILDHALL_* environment variables onto the config.
func (c *Config) ApplyEnv() {
	if c == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv("GUILDHALL_ADDR")); v != "" {
		c.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("GUILDHALL_DATA_DIR")); v != "" {
		c.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("GUILDHALL_PROJECT_ROOT")); v != "" {
		c.ProjectRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("GUILDHALL_WORKSPACES_ROOT")); v != "" {
		c.WorkspacesRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("GUILDHALL_ALLOWED_ORIGINS")); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		c.AllowedOrigins = origins
	}
	if v := strings.TrimSpace(os.Getenv("GUILDHALL_LOG_FORMAT")); v != "" {
		c.LogFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("GUILDHALL_LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("GUILDHALL_PROVIDER_BASE_URL")); v != "" {
		c.ProviderBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("GUILDHALL_PROVIDER_API_KEY")); v != "" {
		c.ProviderAPIKey = v
	}
}

// SkillStoreDir returns the canonical skill store under the project root.
func (c *Config) SkillStoreDir() string {
	return filepath.Join(c.ProjectRoot, ".guild", "skills")
}

// DatabasePath returns the sqlite database location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "guildhall.db")
}

// DefaultConfigPath returns the default config path:
//
//	~/.guildhall/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "guildhall.config.json"
	}
	return filepath.Join(home, ".guildhall", "config.json")
}

// Load reads a config file. A missing file is not an error: the caller gets
// the defaults with env overlays applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
