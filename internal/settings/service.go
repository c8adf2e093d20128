// Package settings manages runtime configuration: one global record of
// non-secret fields plus presence indicators. Secret values live only in an
// in-process cache and the environment; they never reach the database or a
// response body.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/guildhall-ai/guildhall/internal/store"
)

// GlobalID keys the single settings record.
const GlobalID = "global"

// Defaults carry the environment-derived values used when nothing was
// submitted at runtime.
type Defaults struct {
	ProviderBaseURL string
	ProviderAPIKey  string
}

// View is the masked read model: secrets appear only as booleans.
type View struct {
	ProviderBaseURL   string `json:"provider_base_url,omitempty"`
	ProviderAPIKeySet bool   `json:"provider_api_key_set"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

// UpdateRequest merges into the current settings. Nil leaves a field
// untouched; an empty string clears it.
type UpdateRequest struct {
	ProviderBaseURL *string `json:"provider_base_url"`
	ProviderAPIKey  *string `json:"provider_api_key"`
}

type Service struct {
	records  *store.Store
	defaults Defaults
	log      *slog.Logger

	// apiKey is process-local and gone on restart. Empty means nothing was
	// submitted (or it was cleared); runtime reads then fall back to the
	// environment default.
	mu     sync.Mutex
	apiKey string
}

func NewService(records *store.Store, defaults Defaults, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{records: records, defaults: defaults, log: log}
}

// View returns the masked settings. Without a stored record it reflects the
// environment defaults.
func (s *Service) View(ctx context.Context) (*View, error) {
	if s == nil || s.records == nil {
		return nil, errors.New("settings service not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rec, err := s.records.GetSettings(ctx, GlobalID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &View{
			ProviderBaseURL:   strings.TrimSpace(s.defaults.ProviderBaseURL),
			ProviderAPIKeySet: strings.TrimSpace(s.defaults.ProviderAPIKey) != "",
		}, nil
	}
	return &View{
		ProviderBaseURL:   rec.ProviderBaseURL,
		ProviderAPIKeySet: rec.ProviderAPIKeySet,
		UpdatedAt:         rec.UpdatedAt,
	}, nil
}

// Update applies a partial request. Secret values go to the in-process
// cache; only their presence indicator is written through.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*View, error) {
	if s == nil || s.records == nil {
		return nil, errors.New("settings service not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rec, err := s.records.GetSettings(ctx, GlobalID)
	if err != nil {
		return nil, err
	}
	next := store.SettingsRecord{ID: GlobalID}
	if rec != nil {
		next = *rec
	}

	if req.ProviderBaseURL != nil {
		next.ProviderBaseURL = strings.TrimSpace(*req.ProviderBaseURL)
	}
	if req.ProviderAPIKey != nil {
		key := strings.TrimSpace(*req.ProviderAPIKey)
		next.ProviderAPIKeySet = key != ""

		s.mu.Lock()
		s.apiKey = key
		s.mu.Unlock()
	}

	if _, err := s.records.UpsertSettings(ctx, next); err != nil {
		return nil, err
	}
	s.log.Info("settings updated", "base_url_set", next.ProviderBaseURL != "", "api_key_set", next.ProviderAPIKeySet)
	return s.View(ctx)
}

// ProviderAPIKey is the runtime credential: the submitted value when one
// exists this process, otherwise the environment default.
func (s *Service) ProviderAPIKey() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	key := s.apiKey
	s.mu.Unlock()
	if key != "" {
		return key
	}
	return strings.TrimSpace(s.defaults.ProviderAPIKey)
}

// ProviderBaseURL prefers the stored value and falls back to the
// environment default.
func (s *Service) ProviderBaseURL(ctx context.Context) string {
	if s == nil {
		return ""
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if s.records != nil {
		rec, err := s.records.GetSettings(ctx, GlobalID)
		if err == nil && rec != nil && strings.TrimSpace(rec.ProviderBaseURL) != "" {
			return rec.ProviderBaseURL
		}
	}
	return strings.TrimSpace(s.defaults.ProviderBaseURL)
}
