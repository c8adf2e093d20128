package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/guildhall-ai/guildhall/internal/auditlog"
)

type pluginInstallRequest struct {
	SourceURL string `json:"source_url"`
	SourceRef string `json:"source_ref,omitempty"`
}

type pluginUpdateRequest struct {
	SourceRef string `json:"source_ref,omitempty"`
}

func (h *Handler) listPlugins(w http.ResponseWriter, r *http.Request) {
	all, err := h.manager.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": all, "total": len(all)})
}

func (h *Handler) getPlugin(w http.ResponseWriter, r *http.Request) {
	p, err := h.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) installPlugin(w http.ResponseWriter, r *http.Request) {
	var req pluginInstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	p, err := h.manager.Install(r.Context(), req.SourceURL, req.SourceRef)
	if err != nil {
		h.audit.Append(auditlog.Entry{
			Action:    "plugin_install",
			Status:    auditlog.StatusFailure,
			Error:     err.Error(),
			SourceURL: strings.TrimSpace(req.SourceURL),
		})
		h.writeError(w, err)
		return
	}

	h.audit.Append(auditlog.Entry{
		Action:     "plugin_install",
		PluginID:   p.ID,
		PluginName: p.Name,
		SourceURL:  p.SourceURL,
		Detail:     map[string]any{"version": p.Version, "skills": len(p.SkillIDs)},
	})
	h.rebuildAffected(r.Context(), p.SkillIDs)
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) updatePlugin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// The body is optional; an absent one means "same ref".
	var req pluginUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	p, affected, err := h.manager.Update(r.Context(), id, req.SourceRef)
	if err != nil {
		h.audit.Append(auditlog.Entry{
			Action:   "plugin_update",
			Status:   auditlog.StatusFailure,
			Error:    err.Error(),
			PluginID: id,
		})
		h.writeError(w, err)
		return
	}

	h.audit.Append(auditlog.Entry{
		Action:     "plugin_update",
		PluginID:   p.ID,
		PluginName: p.Name,
		SourceURL:  p.SourceURL,
		Detail:     map[string]any{"version": p.Version, "skills": len(p.SkillIDs)},
	})
	h.rebuildAffected(r.Context(), affected)
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) uninstallPlugin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.manager.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	removed, err := h.manager.Uninstall(r.Context(), id)
	if err != nil {
		h.audit.Append(auditlog.Entry{
			Action:   "plugin_uninstall",
			Status:   auditlog.StatusFailure,
			Error:    err.Error(),
			PluginID: id,
		})
		h.writeError(w, err)
		return
	}

	h.audit.Append(auditlog.Entry{
		Action:     "plugin_uninstall",
		PluginID:   p.ID,
		PluginName: p.Name,
		SourceURL:  p.SourceURL,
		Detail:     map[string]any{"skills_removed": len(removed)},
	})
	h.rebuildAffected(r.Context(), removed)
	w.WriteHeader(http.StatusNoContent)
}

// rebuildAffected refreshes the workspace of every agent whose grant set
// intersects the touched skill ids, and of every allow-all agent. The
// triggering operation already succeeded, so failures here are logged and
// never surface to the client.
func (h *Handler) rebuildAffected(ctx context.Context, skillIDs []string) {
	if len(skillIDs) == 0 {
		return
	}
	agents, err := h.records.ListAgents(ctx)
	if err != nil {
		h.log.Warn("rebuild scan failed", "error", err)
		return
	}

	touched := make(map[string]bool, len(skillIDs))
	for _, id := range skillIDs {
		touched[id] = true
	}

	for _, a := range agents {
		if !a.AllowAllSkills && !intersects(a.SkillIDs, touched) {
			continue
		}
		if _, err := h.builder.Rebuild(ctx, a.ID, a.SkillIDs, a.AllowAllSkills); err != nil {
			h.log.Warn("workspace rebuild failed", "agent_id", a.ID, "error", err)
			h.audit.Append(auditlog.Entry{
				Action:  "workspace_rebuild",
				Status:  auditlog.StatusFailure,
				Error:   err.Error(),
				AgentID: a.ID,
			})
			continue
		}
		h.log.Info("workspace rebuilt", "agent_id", a.ID)
	}
}

func intersects(ids []string, set map[string]bool) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}
