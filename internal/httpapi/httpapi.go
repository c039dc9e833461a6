// Package httpapi exposes the minimal HTTP surface a long-running
// deployment needs alongside the CLI: liveness, current status, and
// Prometheus metrics. spec.md treats transport specifics as a
// non-goal, so this stays deliberately small — no routing framework,
// just net/http and the teacher's middleware-chaining idiom.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/repoindexer/repoindexer/internal/observability"
	"github.com/repoindexer/repoindexer/internal/orchestrator"
	"github.com/repoindexer/repoindexer/internal/security/auth"
)

// Server is the status/healthz/metrics HTTP surface.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       *observability.Logger
	JWTManager   *auth.JWTManager // nil disables bearer-auth on /status
	StartedAt    time.Time
}

// Handler builds the routed, middleware-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/status", s.authMiddleware(http.HandlerFunc(s.handleStatus)))

	return securityHeaders(requestLogger(s.Logger, mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.StartedAt).String(),
	})
}

type statusResponse struct {
	Ingesting         bool     `json:"ingesting"`
	CurrentRepository string   `json:"currentRepository,omitempty"`
	Repositories      []string `json:"repositories"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Orchestrator.GetStatus()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	names := make([]string, 0, len(st.Repositories))
	for _, rec := range st.Repositories {
		names = append(names, rec.Name)
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Ingesting:         st.Ingesting,
		CurrentRepository: st.CurrentRepository,
		Repositories:      names,
	})
}

// authMiddleware enforces a Bearer token on /status when a JWTManager
// is configured; with none configured (the CLI-only deployment mode)
// it is a no-op, grounded on the teacher's AuthMiddleware but trimmed
// to this surface's single protected route.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.JWTManager == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		token := strings.TrimPrefix(header, prefix)
		if _, err := s.JWTManager.ValidateToken(r.Context(), token); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders sets the handful of static response headers that
// apply regardless of route, trimmed from the teacher's much larger
// CSP/HSTS/CORS SecurityMiddleware — this surface serves only
// same-process JSON/metrics, not browser content.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *observability.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if logger != nil {
			logger.InfoContext(r.Context(), "httpapi: request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
