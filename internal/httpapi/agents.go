package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/guildhall-ai/guildhall/internal/auditlog"
	"github.com/guildhall-ai/guildhall/internal/store"
)

type agentCreateRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	SkillIDs       []string `json:"skill_ids,omitempty"`
	AllowAllSkills bool     `json:"allow_all_skills,omitempty"`
}

// agentSkillsRequest edits an agent's grant set. Nil fields stay untouched.
type agentSkillsRequest struct {
	SkillIDs       *[]string `json:"skill_ids"`
	AllowAllSkills *bool     `json:"allow_all_skills"`
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	all, err := h.records.ListAgents(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": all, "total": len(all)})
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var req agentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	a, err := h.records.PutAgent(r.Context(), store.Agent{
		Name:           req.Name,
		Description:    req.Description,
		SkillIDs:       req.SkillIDs,
		AllowAllSkills: req.AllowAllSkills,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.audit.Append(auditlog.Entry{Action: "agent_create", AgentID: a.ID, Detail: map[string]any{"name": a.Name}})
	h.rebuildAgent(r.Context(), a)
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.records.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) deleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.records.DeleteAgent(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}

	// The isolated view goes with the agent.
	if err := h.builder.Delete(id); err != nil {
		h.log.Warn("workspace delete failed", "agent_id", id, "error", err)
	}
	h.audit.Append(auditlog.Entry{Action: "agent_delete", AgentID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setAgentSkills(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req agentSkillsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.SkillIDs == nil && req.AllowAllSkills == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "skill_ids or allow_all_skills is required"})
		return
	}

	a, err := h.records.UpdateAgent(r.Context(), id, store.AgentPatch{
		SkillIDs:       req.SkillIDs,
		AllowAllSkills: req.AllowAllSkills,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}

	h.audit.Append(auditlog.Entry{
		Action:  "agent_skills_update",
		AgentID: a.ID,
		Detail:  map[string]any{"skills": len(a.SkillIDs), "allow_all": a.AllowAllSkills},
	})
	h.rebuildAgent(r.Context(), a)
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) getAgentWorkspace(w http.ResponseWriter, r *http.Request) {
	a, err := h.records.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}

	names, err := h.builder.AuthorizedNames(r.Context(), a.SkillIDs, a.AllowAllSkills)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":             h.builder.WorkspacePath(a.ID),
		"exists":           h.builder.Exists(a.ID),
		"authorized_names": names,
	})
}

func (h *Handler) rebuildAgentWorkspace(w http.ResponseWriter, r *http.Request) {
	a, err := h.records.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}

	path, err := h.builder.Rebuild(r.Context(), a.ID, a.SkillIDs, a.AllowAllSkills)
	if err != nil {
		h.audit.Append(auditlog.Entry{
			Action:  "workspace_rebuild",
			Status:  auditlog.StatusFailure,
			Error:   err.Error(),
			AgentID: a.ID,
		})
		h.writeError(w, err)
		return
	}

	h.audit.Append(auditlog.Entry{Action: "workspace_rebuild", AgentID: a.ID})
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

// rebuildAgent refreshes one agent's isolated view after a grant change.
// The edit is already persisted; a build failure is logged, not returned.
func (h *Handler) rebuildAgent(ctx context.Context, a *store.Agent) {
	if a == nil {
		return
	}
	if _, err := h.builder.Rebuild(ctx, a.ID, a.SkillIDs, a.AllowAllSkills); err != nil {
		h.log.Warn("workspace rebuild failed", "agent_id", a.ID, "error", err)
		h.audit.Append(auditlog.Entry{
			Action:  "workspace_rebuild",
			Status:  auditlog.StatusFailure,
			Error:   err.Error(),
			AgentID: a.ID,
		})
	}
}
