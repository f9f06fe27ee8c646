package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/people-registry/registry/internal/auth"
	"github.com/people-registry/registry/internal/authz"
	"github.com/people-registry/registry/internal/observability"
	"github.com/people-registry/registry/internal/platform/httpx"
	"github.com/people-registry/registry/internal/rbac"
	"github.com/people-registry/registry/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Metrics        *observability.Metrics
	Authz          *authz.Middleware
	RBACMiddleware rbac.Middleware
	AuthHandler    *auth.Handler
	RBACHandler    *rbac.Handler
	JobHandler     *jobs.Handler
}

// NewRouter constructs the chi.Router with registry defaults. Every route,
// public ones included, passes through the authorization pipeline.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.Authz.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Route("/v2", func(r chi.Router) {
		if params.RBACHandler != nil {
			r.Route("/admin/roles", params.RBACHandler.MountAdminRoutes)
			r.Route("/me", params.RBACHandler.MountSelfRoutes)
		}
		if params.AuthHandler != nil {
			r.Route("/admin/users", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireAny(rbac.PermUserAdmin, rbac.PermSecurityAdmin))
				params.AuthHandler.MountAdminRoutes(r)
			})
		}
		if params.JobHandler != nil {
			r.Route("/admin/jobs", params.JobHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, httpx.ErrNotFound)
	})

	return r
}
