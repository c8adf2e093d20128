package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/guildhall-ai/guildhall/internal/auditlog"
	"github.com/guildhall-ai/guildhall/internal/settings"
)

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	v, err := h.settings.View(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	v, err := h.settings.Update(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Only field presence goes in the trail, never a value.
	h.audit.Append(auditlog.Entry{
		Action: "settings_update",
		Detail: map[string]any{
			"base_url_updated": req.ProviderBaseURL != nil,
			"api_key_updated":  req.ProviderAPIKey != nil,
		},
	})
	writeJSON(w, http.StatusOK, v)
}
