package httpapi

import (
	"net/http"
	"strconv"
)

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": h.version,
		"system":  h.sys.Snapshot(r.Context()),
	})
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	entries := h.audit.List(limit)
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": len(entries)})
}
