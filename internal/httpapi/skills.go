package httpapi

import "net/http"

func (h *Handler) listSkills(w http.ResponseWriter, r *http.Request) {
	all, err := h.records.ListSkills(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": all, "total": len(all)})
}
