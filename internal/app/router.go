package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/finops-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/finops-gl/internal/accounting/balances"
	"github.com/odyssey-erp/finops-gl/internal/accounting/journals"
	"github.com/odyssey-erp/finops-gl/internal/accounting/manual"
	"github.com/odyssey-erp/finops-gl/internal/accounting/mappings"
	"github.com/odyssey-erp/finops-gl/internal/accounting/settlements"
	"github.com/odyssey-erp/finops-gl/internal/observability"
	"github.com/odyssey-erp/finops-gl/jobs"
)

// APIPrefix is where the ledger API is mounted.
const APIPrefix = "/api/gl"

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Ledger     *Ledger
	Metrics    *observability.Metrics
	JobHandler *jobs.Handler
}

// NewRouter constructs the chi.Router with the ledger routes.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if l := params.Ledger; l != nil {
		r.Route(APIPrefix, func(r chi.Router) {
			r.Route("/accounts", accounts.NewHandler(logger, l.Accounts).MountRoutes)
			r.Route("/mappings", mappings.NewHandler(logger, l.Mappings).MountRoutes)
			entries := journals.NewHandler(logger, l.Journals)
			r.Route("/journals", func(r chi.Router) {
				entries.MountRoutes(r)
				manual.NewHandler(logger, l.Manual).MountRoutes(r)
			})
			r.Route("/events", entries.MountEventRoutes)
			r.Route("/settlements", settlements.NewHandler(logger, l.Settlements).MountRoutes)
			balances.NewHandler(logger, l.Balances).MountRoutes(r)
		})
	}

	return r
}
