package httpapi

import (
	stdhttp "net/http"

	"server/internal/http/handlers"
	"server/internal/infra"
	"server/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func NewRouter(app *handlers.App, cfg *infra.Config, logger zerolog.Logger, lookup middleware.CountryLookup) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Country(lookup))

	r.Get("/v1/healthz", app.Health)

	// the generation pipeline
	r.Post("/generate", app.Generate)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/me/quota", app.MyQuota)
		r.Get("/generations", app.ListGenerations)
		r.Post("/billing/checkout", app.BillingCheckout)
		r.Post("/billing/webhook", app.BillingWebhook)
	})

	return r
}
