package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chronolab/chronovm/internal/logger"
	"github.com/chronolab/chronovm/pkg/api/auth"
	"github.com/chronolab/chronovm/pkg/api/handlers"
	apiMiddleware "github.com/chronolab/chronovm/pkg/api/middleware"
	"github.com/chronolab/chronovm/pkg/governance/roles"
	"github.com/chronolab/chronovm/pkg/governance/store"
)

// NewRouter builds the chi router exposing the VM and governance cores over
// HTTP: health checks, a stateless VM run endpoint, and the governance
// template/override/audit/rollback surface. This is a reference host, not
// a protocol mandated by the core — the pure packages underneath have no
// knowledge of HTTP.
//
// Routes:
//   - GET  /health, /health/ready
//   - POST /api/v1/vm/runs
//   - GET  /api/v1/projects/{projectId}/layout
//   - PUT  /api/v1/projects/{projectId}/template
//   - PUT  /api/v1/projects/{projectId}/overrides
//   - GET  /api/v1/projects/{projectId}/audit
//   - POST /api/v1/projects/{projectId}/rollback
func NewRouter(s store.Store, jwtService *auth.JWTService, maxSteps int64) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(s)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	vmHandler := handlers.NewVMHandler(maxSteps)
	govHandler := handlers.NewGovernanceHandler(s, nil)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/vm", func(r chi.Router) {
			r.Use(apiMiddleware.JWTAuth(jwtService))
			r.Post("/runs", vmHandler.Run)
		})

		r.Route("/projects/{projectId}", func(r chi.Router) {
			r.Use(apiMiddleware.JWTAuth(jwtService))

			r.Group(func(r chi.Router) {
				r.Use(apiMiddleware.RequireCapability(roles.CapViewLayout))
				r.Get("/layout", govHandler.GetLayout)
			})
			r.Group(func(r chi.Router) {
				r.Use(apiMiddleware.RequireCapability(roles.CapViewAuditLog))
				r.Get("/audit", govHandler.ListAudit)
			})
			// Capability enforcement for mutations happens inside the
			// handler, since the required capability depends on the
			// caller's role (update vs reset vs rollback use different
			// capabilities already checked by the governance core itself).
			r.Put("/template", govHandler.UpdateTemplate)
			r.Put("/overrides", govHandler.SetOverride)
			r.Post("/rollback", govHandler.Rollback)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
