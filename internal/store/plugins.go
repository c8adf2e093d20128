package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Plugin status state machine: install creates "installed"; update moves
// through "updating" back to "installed" or to "error"; uninstall deletes
// the record.
const (
	PluginStatusInstalled = "installed"
	PluginStatusUpdating  = "updating"
	PluginStatusError     = "error"
)

type Plugin struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Version      string   `json:"version"`
	Author       string   `json:"author"`
	SourceURL    string   `json:"source_url"`
	SourceRef    string   `json:"source_ref"`
	SkillIDs     []string `json:"skill_ids"`
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Marketplace  string   `json:"marketplace,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// PluginPatch is a partial update. Nil fields are left untouched.
type PluginPatch struct {
	Name         *string
	Description  *string
	Version      *string
	Author       *string
	SourceRef    *string
	SkillIDs     *[]string
	Status       *string
	ErrorMessage *string
	Marketplace  *string
}

const pluginColumns = `id, name, description, version, author, source_url, source_ref, skill_ids, status, error_message, marketplace, created_at, updated_at`

func scanPlugin(scan func(dest ...any) error) (*Plugin, error) {
	var p Plugin
	var skillIDs string
	if err := scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Version,
		&p.Author,
		&p.SourceURL,
		&p.SourceRef,
		&skillIDs,
		&p.Status,
		&p.ErrorMessage,
		&p.Marketplace,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.SkillIDs = decodeIDs(skillIDs)
	return &p, nil
}

// PutPlugin inserts a new plugin record, assigning id and timestamps when
// absent. Returns ErrDuplicateSourceURL when the source URL is already
// registered.
func (s *Store) PutPlugin(ctx context.Context, p Plugin) (*Plugin, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.Name = strings.TrimSpace(p.Name)
	p.SourceURL = strings.TrimSpace(p.SourceURL)
	if p.Name == "" || p.SourceURL == "" {
		return nil, errors.New("invalid plugin: missing name or source_url")
	}
	if strings.TrimSpace(p.ID) == "" {
		p.ID = uuid.NewString()
	}
	if strings.TrimSpace(p.SourceRef) == "" {
		p.SourceRef = "main"
	}
	if strings.TrimSpace(p.Status) == "" {
		p.Status = PluginStatusInstalled
	}
	now := nowStamp()
	if strings.TrimSpace(p.CreatedAt) == "" {
		p.CreatedAt = now
	}
	if strings.TrimSpace(p.UpdatedAt) == "" {
		p.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO plugins(`+pluginColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		p.ID,
		p.Name,
		p.Description,
		p.Version,
		p.Author,
		p.SourceURL,
		p.SourceRef,
		encodeIDs(p.SkillIDs),
		p.Status,
		p.ErrorMessage,
		p.Marketplace,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "plugins.source_url") {
			return nil, ErrDuplicateSourceURL
		}
		return nil, err
	}
	return &p, nil
}

// GetPlugin returns nil when the id is unknown.
func (s *Store) GetPlugin(ctx context.Context, id string) (*Plugin, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("missing plugin id")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+pluginColumns+` FROM plugins WHERE id = ?`, id)
	p, err := scanPlugin(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// FindPluginBySourceURL returns nil when no plugin owns the URL.
func (s *Store) FindPluginBySourceURL(ctx context.Context, sourceURL string) (*Plugin, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, errors.New("missing source url")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+pluginColumns+` FROM plugins WHERE source_url = ?`, sourceURL)
	p, err := scanPlugin(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) ListPlugins(ctx context.Context) ([]Plugin, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+pluginColumns+` FROM plugins ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Plugin, 0, 16)
	for rows.Next() {
		p, err := scanPlugin(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdatePlugin applies a partial patch and bumps updated_at. Returns nil
// when the id is unknown.
func (s *Store) UpdatePlugin(ctx context.Context, id string, patch PluginPatch) (*Plugin, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("missing plugin id")
	}

	sets := []string{"updated_at = ?"}
	args := []any{nowStamp()}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*patch.Name))
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Version != nil {
		sets = append(sets, "version = ?")
		args = append(args, *patch.Version)
	}
	if patch.Author != nil {
		sets = append(sets, "author = ?")
		args = append(args, *patch.Author)
	}
	if patch.SourceRef != nil {
		sets = append(sets, "source_ref = ?")
		args = append(args, strings.TrimSpace(*patch.SourceRef))
	}
	if patch.SkillIDs != nil {
		sets = append(sets, "skill_ids = ?")
		args = append(args, encodeIDs(*patch.SkillIDs))
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, strings.TrimSpace(*patch.Status))
	}
	if patch.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *patch.ErrorMessage)
	}
	if patch.Marketplace != nil {
		sets = append(sets, "marketplace = ?")
		args = append(args, strings.TrimSpace(*patch.Marketplace))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE plugins SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetPlugin(ctx, id)
}

func (s *Store) DeletePlugin(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("missing plugin id")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM plugins WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
