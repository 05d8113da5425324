// Package httpsurface is the narrowest possible HTTP adapter: a health
// endpoint, a read-only workspace file-browser, and the metrics endpoint,
// behind an optional JWT auth middleware. Grounded on the teacher's
// pkg/transport HTTP middleware stack and go-chi router usage, trimmed to
// the surface spec.md explicitly keeps out of scope (full REST/CLI framing
// is a non-goal; this exists only so the WS/MCP surfaces have somewhere to
// report liveness and so operators can glance at workspace contents).
package httpsurface

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aiwhisperer/core/pkg/observability"
	"github.com/aiwhisperer/core/pkg/pathguard"
	"github.com/aiwhisperer/core/pkg/sessionmanager"
)

// Config configures the HTTP surface.
type Config struct {
	// Auth, if non-nil, guards every route except /healthz.
	Auth *JWTAuth
}

// Surface bundles the health, metrics, and file-browser routes behind one
// chi.Router.
type Surface struct {
	router  chi.Router
	guard   *pathguard.Guard
	manager *sessionmanager.Manager
	metrics *observability.Metrics
}

// New builds a Surface rooted at guard's workspace, reporting manager's
// agent states and metrics's Prometheus registry.
func New(cfg Config, guard *pathguard.Guard, manager *sessionmanager.Manager, metrics *observability.Metrics) *Surface {
	s := &Surface{guard: guard, manager: manager, metrics: metrics}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)

	protected := chi.NewRouter()
	if cfg.Auth != nil {
		protected.Use(cfg.Auth.Middleware)
	}
	protected.Get("/status", s.handleStatus)
	protected.Get("/files/*", s.handleBrowse)
	if metrics != nil {
		protected.Handle("/metrics", metrics.Handler())
	}
	r.Mount("/", protected)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Surface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Surface) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Surface) handleStatus(w http.ResponseWriter, r *http.Request) {
	states := map[string]string{}
	if s.manager != nil {
		for name, state := range s.manager.AgentStates() {
			states[name] = string(state)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": states})
}

// fileEntry is one directory entry in a file-browser listing.
type fileEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// handleBrowse lists a workspace directory's immediate entries. It is
// read-only: no write, delete, or upload route exists on this surface.
func (s *Surface) handleBrowse(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	full, err := s.guard.Resolve(rel)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "directory not found"})
		return
	}

	out := make([]fileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		size := int64(0)
		if err == nil {
			size = info.Size()
		}
		out = append(out, fileEntry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"path":    filepath.Clean(rel),
		"entries": out,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
