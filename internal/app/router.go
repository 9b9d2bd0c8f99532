package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewarden/gatewarden/internal/auth"
	"github.com/gatewarden/gatewarden/internal/observability"
	"github.com/gatewarden/gatewarden/internal/ratelimit"
	"github.com/gatewarden/gatewarden/internal/rbac"
	"github.com/gatewarden/gatewarden/internal/users"
	"github.com/gatewarden/gatewarden/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	AuthMiddleware     *auth.Middleware
	UsersHandler       *users.Handler
	RolesHandler       *rbac.RolesHandler
	PermissionsHandler *rbac.PermissionsHandler
	RBACMiddleware     rbac.Middleware
	RateLimiter        *ratelimit.Middleware
	JobHandler         *jobs.Handler
	Pool               *pgxpool.Pool
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router.
//
// Per-request pipeline order: base stack, then optional bearer resolution,
// then rate limiting keyed on the resolved caller, then authentication and
// authorization on the routes that demand them. Rate limiting sits before
// authorization so a limited caller costs one governor lookup, not a graph
// evaluation.
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

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	protected := func(r chi.Router) {
		r.Use(params.AuthMiddleware.Identify)
		r.Use(params.RateLimiter.ByCaller)
		r.Use(params.AuthMiddleware.RequireAuth)
	}

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
		r.With(params.RateLimiter.Limit(ratelimit.ClassRegister)).Post("/register", params.UsersHandler.Register)
		r.Group(func(r chi.Router) {
			protected(r)
			r.Post("/change-password", params.UsersHandler.ChangePassword)
		})
	})

	r.Route("/users", func(r chi.Router) {
		protected(r)
		params.UsersHandler.MountRoutes(r)
	})
	r.Route("/roles", func(r chi.Router) {
		protected(r)
		params.RolesHandler.MountRoutes(r)
	})
	r.Route("/permissions", func(r chi.Router) {
		protected(r)
		params.PermissionsHandler.MountRoutes(r)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			protected(r)
			r.Use(params.RBACMiddleware.Require("system", "read"))
			params.JobHandler.MountRoutes(r)
		})
	}

	return r
}
