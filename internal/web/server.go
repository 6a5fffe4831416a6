// Package web exposes TideWatch's HTTP API: container inspection and
// control, the update review/approve/apply lifecycle, and runtime
// settings. Routes are registered on a stdlib net/http.ServeMux using Go
// 1.22's method+path patterns, matching the teacher's own route table
// style, trimmed to the single bearer-token auth model this system needs
// in place of the teacher's session/WebAuthn/OIDC stack.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homelabforge/tidewatch/internal/logging"
)

// Dependencies defines what the web server needs from the rest of the
// application, one narrow interface per concern so handlers are testable
// against in-memory fakes.
type Dependencies struct {
	Containers containerStore
	Updates updateStore
	Settings settingsStore
	Docker composeRestarter
	Syncer syncer
	Checker updateChecker
	Applier updateApplier
	Scheduler scheduleReloader
	Notify notifyTester
	Log *logging.Logger

	APIToken string // bearer token; auth middleware is a no-op when empty
	MetricsEnabled bool
}

// Server is TideWatch's HTTP API server.
type Server struct {
	deps Dependencies
	mux *http.ServeMux
	httpServer *http.Server
}

// NewServer builds a Server with all routes registered.
func NewServer(deps Dependencies) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ListenAndServe starts the HTTP server on addr, blocking until it
// returns (typically via Shutdown from the caller's context-cancellation
// goroutine).
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr: addr,
		Handler: s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	auth := s.authMiddleware

	s.mux.Handle("GET /containers", auth(s.listContainers))
	s.mux.Handle("GET /containers/{id}", auth(s.getContainer))
	s.mux.Handle("PUT /containers/{id}", auth(s.updateContainer))
	s.mux.Handle("GET /containers/{id}/details", auth(s.containerDetails))
	s.mux.Handle("POST /containers/sync", auth(s.syncContainers))
	s.mux.Handle("POST /containers/{id}/restart", auth(s.restartContainer))

	s.mux.Handle("GET /updates", auth(s.listUpdates))
	s.mux.Handle("POST /updates/check", auth(s.checkUpdates))
	s.mux.Handle("POST /updates/check/{container_id}", auth(s.checkUpdates))
	s.mux.Handle("POST /updates/{id}/approve", auth(s.approveUpdate))
	s.mux.Handle("POST /updates/{id}/reject", auth(s.rejectUpdate))
	s.mux.Handle("POST /updates/{id}/apply", auth(s.applyUpdate))
	s.mux.Handle("POST /updates/batch/approve", auth(s.batchUpdates(true)))
	s.mux.Handle("POST /updates/batch/reject", auth(s.batchUpdates(false)))
	s.mux.Handle("DELETE /updates/{id}", auth(s.deleteUpdate))

	s.mux.Handle("GET /settings", auth(s.listSettings))
	s.mux.Handle("GET /settings/{key}", auth(s.getSetting))
	s.mux.Handle("PUT /settings/{key}", auth(s.putSetting))
	s.mux.Handle("POST /settings/batch", auth(s.batchSettings))
	s.mux.Handle("POST /settings/reset", auth(s.resetSettings))
	s.mux.Handle("POST /settings/test/{provider}", auth(s.testSetting))

	if s.deps.MetricsEnabled {
		s.mux.Handle("GET /metrics", promhttp.Handler())
	}
}

// authMiddleware enforces the bearer token in the Authorization header
// using a constant-time comparison, so response timing can't be used to
// brute-force the token one byte at a time. Auth is disabled entirely
// when no token is configured — appropriate for a loopback-only deployment,
// the operator's call to make via TIDEWATCH_API_TOKEN.
func (s *Server) authMiddleware(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.APIToken == "" {
			h(w, r)
			return
		}
		const prefix = "Bearer "
		got := r.Header.Get("Authorization")
		if len(got) <= len(prefix) || got[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token := got[len(prefix):]
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.APIToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		h(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
