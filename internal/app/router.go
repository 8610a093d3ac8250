package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rawdatain/backoffice/internal/accounting/accounts"
	"github.com/rawdatain/backoffice/internal/accounting/journals"
	audithttp "github.com/rawdatain/backoffice/internal/audit/http"
	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/lookup"
	"github.com/rawdatain/backoffice/internal/observability"
	"github.com/rawdatain/backoffice/internal/platform/httpx"
	"github.com/rawdatain/backoffice/internal/profitsharing"
	"github.com/rawdatain/backoffice/internal/rbac"
	"github.com/rawdatain/backoffice/internal/relations"
	"github.com/rawdatain/backoffice/internal/segments"
	"github.com/rawdatain/backoffice/internal/settings"
	"github.com/rawdatain/backoffice/internal/shared"
	"github.com/rawdatain/backoffice/internal/vouchers"
	"github.com/rawdatain/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthService    *auth.Service
	Tokens         *auth.TokenService
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	AuthHandler          *auth.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	AuditHandler         *audithttp.Handler
	AccountsHandler      *accounts.Handler
	JournalsHandler      *journals.Handler
	RelationsHandler     *relations.Handler
	SegmentsHandler      *segments.Handler
	ProfitSharingHandler *profitsharing.Handler
	VouchersHandler      *vouchers.Handler
	SettingsHandler      *settings.Handler
	LookupHandler        *lookup.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with back office defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		AuthService:    params.AuthService,
		Tokens:         params.Tokens,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	guard := params.RBACMiddleware
	r.Route("/api", func(r chi.Router) {
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.PermissionsHandler != nil {
			r.Route("/rbac", params.PermissionsHandler.MountRoutes)
		}
		if params.AccountsHandler != nil {
			r.Route("/accounts", func(r chi.Router) {
				r.Use(guard.RequireAny(shared.PermLedgerView, shared.PermVouchersCreate))
				params.AccountsHandler.MountRoutes(r)
			})
		}
		if params.JournalsHandler != nil {
			r.Route("/journals", func(r chi.Router) {
				r.Use(guard.RequireAny(shared.PermLedgerView))
				params.JournalsHandler.MountRoutes(r, guard.RequireAny(shared.PermLedgerPost))
			})
		}
		if params.RelationsHandler != nil {
			r.Route("/relations", func(r chi.Router) {
				r.Use(guard.RequireAny(shared.PermRelationsView))
				params.RelationsHandler.MountRoutes(r, guard.RequireAny(shared.PermRelationsEdit))
			})
		}
		if params.SegmentsHandler != nil {
			r.Route("/segments", func(r chi.Router) {
				r.Use(guard.RequireAny(shared.PermSegmentsView))
				params.SegmentsHandler.MountRoutes(r, guard.RequireAny(shared.PermSegmentsEdit))
			})
		}
		if params.ProfitSharingHandler != nil {
			r.Route("/profit", func(r chi.Router) {
				r.Use(guard.RequireAny(shared.PermProfitView))
				params.ProfitSharingHandler.MountRoutes(r, guard.RequireAny(shared.PermProfitEdit))
			})
		}
		if params.VouchersHandler != nil {
			r.Route("/vouchers", func(r chi.Router) {
				params.VouchersHandler.MountRoutes(r, guard.RequireAny(shared.PermVouchersCreate))
			})
		}
		if params.SettingsHandler != nil {
			r.Route("/settings", func(r chi.Router) {
				r.Use(guard.RequireAny(shared.PermSettingsView))
				params.SettingsHandler.MountRoutes(r, guard.RequireAny(shared.PermSettingsEdit))
			})
		}
		if params.LookupHandler != nil {
			r.Route("/lookup", func(r chi.Router) {
				r.Use(guard.RequireAny(shared.BackofficeScopes()...))
				params.LookupHandler.MountRoutes(r)
			})
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(guard.RequireAny(shared.PermSettingsEdit))
			params.JobHandler.MountRoutes(r)
		})
	}

	return r
}
