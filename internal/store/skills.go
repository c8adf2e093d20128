package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
)

type Skill struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Version      string `json:"version"`
	Author       string `json:"author"`
	BlobLocation string `json:"blob_location"`
	CreatedBy    string `json:"created_by"`
	IsSystem     bool   `json:"is_system"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type SkillPatch struct {
	Description  *string
	Version      *string
	Author       *string
	BlobLocation *string
}

const skillColumns = `id, name, description, version, author, blob_location, created_by, is_system, created_at, updated_at`

func scanSkill(scan func(dest ...any) error) (*Skill, error) {
	var sk Skill
	var isSystem int
	if err := scan(
		&sk.ID,
		&sk.Name,
		&sk.Description,
		&sk.Version,
		&sk.Author,
		&sk.BlobLocation,
		&sk.CreatedBy,
		&isSystem,
		&sk.CreatedAt,
		&sk.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sk.IsSystem = isSystem != 0
	return &sk, nil
}

func (s *Store) PutSkill(ctx context.Context, sk Skill) (*Skill, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sk.Name = strings.TrimSpace(sk.Name)
	if sk.Name == "" {
		return nil, errors.New("invalid skill: missing name")
	}
	if strings.TrimSpace(sk.ID) == "" {
		sk.ID = uuid.NewString()
	}
	if strings.TrimSpace(sk.Version) == "" {
		sk.Version = "1.0.0"
	}
	if strings.TrimSpace(sk.Author) == "" {
		sk.Author = "unknown"
	}
	if strings.TrimSpace(sk.CreatedBy) == "" {
		sk.CreatedBy = "user"
	}
	now := nowStamp()
	if strings.TrimSpace(sk.CreatedAt) == "" {
		sk.CreatedAt = now
	}
	if strings.TrimSpace(sk.UpdatedAt) == "" {
		sk.UpdatedAt = now
	}

	isSystem := 0
	if sk.IsSystem {
		isSystem = 1
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO skills(`+skillColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		sk.ID,
		sk.Name,
		sk.Description,
		sk.Version,
		sk.Author,
		sk.BlobLocation,
		sk.CreatedBy,
		isSystem,
		sk.CreatedAt,
		sk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sk, nil
}

func (s *Store) GetSkill(ctx context.Context, id string) (*Skill, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("missing skill id")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+skillColumns+` FROM skills WHERE id = ?`, id)
	sk, err := scanSkill(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sk, nil
}

func (s *Store) ListSkills(ctx context.Context) ([]Skill, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+skillColumns+` FROM skills ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Skill, 0, 32)
	for rows.Next() {
		sk, err := scanSkill(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *sk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateSkill(ctx context.Context, id string, patch SkillPatch) (*Skill, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("missing skill id")
	}

	sets := []string{"updated_at = ?"}
	args := []any{nowStamp()}
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
	if patch.BlobLocation != nil {
		sets = append(sets, "blob_location = ?")
		args = append(args, *patch.BlobLocation)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE skills SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetSkill(ctx, id)
}

func (s *Store) DeleteSkill(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("missing skill id")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
