package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-certs/meridian/internal/authn"
	"github.com/meridian-certs/meridian/internal/guard"
	"github.com/meridian-certs/meridian/internal/hierarchy"
	"github.com/meridian-certs/meridian/internal/ledger"
	"github.com/meridian-certs/meridian/internal/platform/httpx"
	"github.com/meridian-certs/meridian/internal/proposal"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Authn           authn.Middleware
	RolesHandler    *hierarchy.Handler
	LedgerHandler   *ledger.Handler
	ProposalHandler *proposal.Handler
	GuardHandler    *guard.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.NoCache)
		r.Use(params.Authn.Authenticate)
		params.RolesHandler.MountRoutes(r)
		params.LedgerHandler.MountRoutes(r)
		params.ProposalHandler.MountRoutes(r)
		params.GuardHandler.MountRoutes(r)
	})

	return r
}
