package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/security-console/internal/access"
	assignmenthttp "github.com/odyssey-erp/security-console/internal/assignment/http"
	audithttp "github.com/odyssey-erp/security-console/internal/audit/http"
	"github.com/odyssey-erp/security-console/internal/auth"
	"github.com/odyssey-erp/security-console/internal/observability"
	"github.com/odyssey-erp/security-console/internal/platform/httpx"
	"github.com/odyssey-erp/security-console/internal/roles"
	"github.com/odyssey-erp/security-console/internal/shared"
	"github.com/odyssey-erp/security-console/internal/users"
	"github.com/odyssey-erp/security-console/jobs"
	"github.com/odyssey-erp/security-console/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SessionManager    *shared.SessionManager
	CSRFManager       *shared.CSRFManager
	Gate              access.Gate
	AuthHandler       *auth.Handler
	RolesHandler      *roles.Handler
	UsersHandler      *users.Handler
	AssignmentHandler *assignmenthttp.Handler
	AuditHandler      *audithttp.Handler
	JobHandler        *jobs.Handler
	ReportClient      *report.Client
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	unauthorized := access.DefaultUnauthorizedPath
	if params.Config != nil && params.Config.UnauthorizedPath != "" {
		unauthorized = params.Config.UnauthorizedPath
	}
	r.Get(unauthorized, func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusForbidden, "Unauthorized", "You do not have access to this screen")
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		if params.RolesHandler != nil {
			r.Route("/roles", func(r chi.Router) {
				r.Use(params.Gate.Screen(shared.PermRolesRead))
				params.RolesHandler.MountRoutes(r)
			})
		}
		if params.UsersHandler != nil {
			r.Route("/users", func(r chi.Router) {
				r.Use(params.Gate.Screen(shared.PermUsersRead))
				params.UsersHandler.MountRoutes(r)
			})
		}
		if params.AssignmentHandler != nil {
			params.AssignmentHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(params.Gate.Screen(shared.PermAuditRead))
				params.AuditHandler.MountRoutes(r)
			})
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
		if params.ReportClient != nil {
			r.Get("/report/ping", report.PingHandler(params.ReportClient, params.Logger))
		}
	})

	return r
}

// requireAuth rejects requests without a signed-in operator.
func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || !sess.Authenticated() {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
