package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Agent carries the authorization inputs the workspace builder consumes:
// the granted skill id set and the allow-all override.
type Agent struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	SkillIDs       []string `json:"skill_ids"`
	AllowAllSkills bool     `json:"allow_all_skills"`
	Status         string   `json:"status"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

type AgentPatch struct {
	Name           *string
	Description    *string
	SkillIDs       *[]string
	AllowAllSkills *bool
	Status         *string
}

const agentColumns = `id, name, description, skill_ids, allow_all_skills, status, created_at, updated_at`

func scanAgent(scan func(dest ...any) error) (*Agent, error) {
	var a Agent
	var skillIDs string
	var allowAll int
	if err := scan(
		&a.ID,
		&a.Name,
		&a.Description,
		&skillIDs,
		&allowAll,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.SkillIDs = decodeIDs(skillIDs)
	a.AllowAllSkills = allowAll != 0
	return &a, nil
}

func (s *Store) PutAgent(ctx context.Context, a Agent) (*Agent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return nil, errors.New("invalid agent: missing name")
	}
	if strings.TrimSpace(a.ID) == "" {
		a.ID = uuid.NewString()
	}
	if strings.TrimSpace(a.Status) == "" {
		a.Status = "idle"
	}
	now := nowStamp()
	if strings.TrimSpace(a.CreatedAt) == "" {
		a.CreatedAt = now
	}
	if strings.TrimSpace(a.UpdatedAt) == "" {
		a.UpdatedAt = now
	}

	allowAll := 0
	if a.AllowAllSkills {
		allowAll = 1
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO agents(`+agentColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
`,
		a.ID,
		a.Name,
		a.Description,
		encodeIDs(a.SkillIDs),
		allowAll,
		a.Status,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("missing agent id")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Agent, 0, 8)
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateAgent(ctx context.Context, id string, patch AgentPatch) (*Agent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("missing agent id")
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
	if patch.SkillIDs != nil {
		sets = append(sets, "skill_ids = ?")
		args = append(args, encodeIDs(*patch.SkillIDs))
	}
	if patch.AllowAllSkills != nil {
		allowAll := 0
		if *patch.AllowAllSkills {
			allowAll = 1
		}
		sets = append(sets, "allow_all_skills = ?")
		args = append(args, allowAll)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, strings.TrimSpace(*patch.Status))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE agents SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetAgent(ctx, id)
}

func (s *Store) DeleteAgent(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("missing agent id")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
