// Package httpapi exposes the plugin lifecycle, agent grants, workspace
// views, and runtime settings over HTTP.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/guildhall-ai/guildhall/internal/auditlog"
	"github.com/guildhall-ai/guildhall/internal/plugins"
	"github.com/guildhall-ai/guildhall/internal/settings"
	"github.com/guildhall-ai/guildhall/internal/store"
	"github.com/guildhall-ai/guildhall/internal/sysinfo"
	"github.com/guildhall-ai/guildhall/internal/workspace"
)

// VersionInfo is the build identity reported by the status endpoint.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Handler holds the collaborators behind the HTTP surface.
type Handler struct {
	records  *store.Store
	manager  *plugins.Manager
	builder  *workspace.Builder
	settings *settings.Service
	sys      *sysinfo.Service
	audit    *auditlog.Store
	version  VersionInfo
	origins  []string
	log      *slog.Logger
}

func NewHandler(
	records *store.Store,
	manager *plugins.Manager,
	builder *workspace.Builder,
	settingsSvc *settings.Service,
	sys *sysinfo.Service,
	audit *auditlog.Store,
	version VersionInfo,
	allowedOrigins []string,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		records:  records,
		manager:  manager,
		builder:  builder,
		settings: settingsSvc,
		sys:      sys,
		audit:    audit,
		version:  version,
		origins:  allowedOrigins,
		log:      log,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLog)
	r.Use(middleware.Recoverer)

	origins := h.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/status", h.status)
		r.Get("/audit", h.listAudit)

		r.Get("/plugins", h.listPlugins)
		r.Post("/plugins/install", h.installPlugin)
		r.Get("/plugins/{id}", h.getPlugin)
		r.Post("/plugins/{id}/update", h.updatePlugin)
		r.Delete("/plugins/{id}", h.uninstallPlugin)

		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.createAgent)
		r.Get("/agents/{id}", h.getAgent)
		r.Delete("/agents/{id}", h.deleteAgent)
		r.Put("/agents/{id}/skills", h.setAgentSkills)
		r.Get("/agents/{id}/workspace", h.getAgentWorkspace)
		r.Post("/agents/{id}/workspace/rebuild", h.rebuildAgentWorkspace)

		r.Get("/skills", h.listSkills)

		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.updateSettings)
	})

	return r
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the pipeline's typed errors onto status codes: unknown
// ids are 404, rejected sources and descriptors are 400, everything else
// is a 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case plugins.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody(err))
	case isBadSource(err):
		writeJSON(w, http.StatusBadRequest, errorBody(err))
	default:
		h.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody(err))
	}
}

func isBadSource(err error) bool {
	if _, ok := plugins.AsFetchError(err); ok {
		return true
	}
	_, ok := plugins.AsValidationError(err)
	return ok
}

func errorBody(err error) map[string]any {
	body := map[string]any{"error": err.Error()}
	if verr, ok := plugins.AsValidationError(err); ok && len(verr.Missing) > 0 {
		body["missing"] = verr.Missing
	}
	if fe, ok := plugins.AsFetchError(err); ok && fe.Output != "" {
		body["output"] = fe.Output
	}
	return body
}
