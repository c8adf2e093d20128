// Package server wires the record store, plugin pipeline, workspace builder,
// and HTTP API into one runnable daemon.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/guildhall-ai/guildhall/internal/auditlog"
	"github.com/guildhall-ai/guildhall/internal/config"
	"github.com/guildhall-ai/guildhall/internal/httpapi"
	"github.com/guildhall-ai/guildhall/internal/lockfile"
	"github.com/guildhall-ai/guildhall/internal/plugins"
	"github.com/guildhall-ai/guildhall/internal/settings"
	"github.com/guildhall-ai/guildhall/internal/skills"
	"github.com/guildhall-ai/guildhall/internal/store"
	"github.com/guildhall-ai/guildhall/internal/sysinfo"
	"github.com/guildhall-ai/guildhall/internal/workspace"
)

type Options struct {
	Config *config.Config

	Version   string
	Commit    string
	BuildTime string
}

type Server struct {
	cfg *config.Config
	log *slog.Logger

	version   string
	commit    string
	buildTime string

	guard   *lockfile.Guard
	records *store.Store
	handler http.Handler
}

// New validates the config, claims the data directory, and builds the full
// service graph. The caller owns the returned server and must Run or Close it.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("missing config")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	cfg := opts.Config

	logger, err := newLogger(strings.TrimSpace(cfg.LogFormat), strings.TrimSpace(cfg.LogLevel))
	if err != nil {
		return nil, err
	}

	guard, err := lockfile.Hold(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("claim data dir: %w", err)
	}

	records, err := store.Open(cfg.DatabasePath())
	if err != nil {
		_ = guard.Release()
		return nil, fmt.Errorf("open database: %w", err)
	}

	content := skills.NewStore(cfg.SkillStoreDir())
	if err := content.EnsureRoot(); err != nil {
		_ = records.Close()
		_ = guard.Release()
		return nil, fmt.Errorf("prepare skill store: %w", err)
	}

	audit, err := auditlog.New(filepath.Join(cfg.DataDir, "audit"), logger)
	if err != nil {
		_ = records.Close()
		_ = guard.Release()
		return nil, fmt.Errorf("open audit trail: %w", err)
	}

	manager := plugins.NewManager(records, plugins.NewGitStager(logger), plugins.NewResolver(logger), plugins.NewIngestor(records, content, logger), logger)
	builder := workspace.NewBuilder(records, content, cfg.WorkspacesRoot, logger)
	settingsSvc := settings.NewService(records, settings.Defaults{
		ProviderBaseURL: cfg.ProviderBaseURL,
		ProviderAPIKey:  cfg.ProviderAPIKey,
	}, logger)
	sys := sysinfo.NewService(cfg.ProjectRoot, logger)

	h := httpapi.NewHandler(records, manager, builder, settingsSvc, sys, audit,
		httpapi.VersionInfo{
			Version:   strings.TrimSpace(opts.Version),
			Commit:    strings.TrimSpace(opts.Commit),
			BuildTime: strings.TrimSpace(opts.BuildTime),
		},
		cfg.AllowedOrigins, logger)

	return &Server{
		cfg:       cfg,
		log:       logger,
		version:   strings.TrimSpace(opts.Version),
		commit:    strings.TrimSpace(opts.Commit),
		buildTime: strings.TrimSpace(opts.BuildTime),
		guard:     guard,
		records:   records,
		handler:   h.Router(),
	}, nil
}

// Run serves the HTTP API until ctx is canceled, then drains in-flight
// requests before returning. It closes the server on exit.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	s.log.Info("guildhalld starting",
		"version", s.version,
		"commit", s.commit,
		"build_time", s.buildTime,
		"addr", s.cfg.Addr,
		"data_dir", s.cfg.DataDir,
		"skill_store", s.cfg.SkillStoreDir(),
		"workspaces_root", s.cfg.WorkspacesRoot,
		"goos", runtime.GOOS,
		"goarch", runtime.GOARCH,
	)

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("guildhalld stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return srv.Close()
	}
	return nil
}

// Close releases the database and the data directory claim. Run calls it on
// exit; calling it again is a no-op.
func (s *Server) Close() error {
	var errs []error
	if s.records != nil {
		if err := s.records.Close(); err != nil {
			errs = append(errs, err)
		}
		s.records = nil
	}
	if s.guard != nil {
		if err := s.guard.Release(); err != nil {
			errs = append(errs, err)
		}
		s.guard = nil
	}
	return errors.Join(errs...)
}

func newLogger(format string, level string) (*slog.Logger, error) {
	var h slog.Handler

	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		h = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	return slog.New(h), nil
}
