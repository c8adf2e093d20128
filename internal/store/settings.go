package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// SettingsRecord is the persisted, non-secret half of runtime settings.
// Secret values never reach the database; only their presence indicator
// does.
type SettingsRecord struct {
	ID                string `json:"id"`
	ProviderBaseURL   string `json:"provider_base_url,omitempty"`
	ProviderAPIKeySet bool   `json:"provider_api_key_set"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func (s *Store) GetSettings(ctx context.Context, id string) (*SettingsRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("missing settings id")
	}

	var rec SettingsRecord
	var keySet int
	err := s.db.QueryRowContext(ctx, `
SELECT id, provider_base_url, provider_api_key_set, created_at, updated_at
FROM settings
WHERE id = ?
`, id).Scan(&rec.ID, &rec.ProviderBaseURL, &keySet, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.ProviderAPIKeySet = keySet != 0
	return &rec, nil
}

func (s *Store) UpsertSettings(ctx context.Context, rec SettingsRecord) (*SettingsRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return nil, errors.New("missing settings id")
	}

	now := nowStamp()
	if strings.TrimSpace(rec.CreatedAt) == "" {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	keySet := 0
	if rec.ProviderAPIKeySet {
		keySet = 1
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings(id, provider_base_url, provider_api_key_set, created_at, updated_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  provider_base_url = excluded.provider_base_url,
  provider_api_key_set = excluded.provider_api_key_set,
  updated_at = excluded.updated_at
`, rec.ID, rec.ProviderBaseURL, keySet, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s.GetSettings(ctx, rec.ID)
}
