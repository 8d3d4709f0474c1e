package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"palmtell/internal/http/handlers"
	"palmtell/internal/middleware"
)

// Options carries the router's cross-cutting settings.
type Options struct {
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
}

// NewRouter wires every route and the shared middleware stack.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N("en", opts.CountryLookup),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	// Health
	r.Get("/v1/healthz", app.Health)

	// Public surface: login, the anonymous upload handshake, queue and
	// billing callbacks, and signed file links.
	r.Post("/v1/auth/google", app.AuthGoogleVerify)
	r.Post("/v1/palm/submit", app.PalmSubmit)
	r.Post("/v1/palm/confirm", app.PalmConfirm)
	r.Post("/v1/jobs/analyze-palm", app.JobAnalyzePalm)
	r.Post("/v1/webhooks/billing", app.BillingWebhook)
	r.Get("/files/*", app.FileServe)

	// Everything else needs a session token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Get("/v1/me/access", app.MeAccess)

		r.Route("/v1/readings", func(r chi.Router) {
			r.Post("/", app.ReadingCreate)
			r.Get("/", app.ReadingList)
			r.Get("/export", app.ReadingExport)
			r.Get("/{id}", app.ReadingGet)
		})

		r.Route("/v1/profiles", func(r chi.Router) {
			r.Get("/", app.ProfileList)
			r.Post("/", app.ProfileCreate)
			r.Delete("/{id}", app.ProfileDelete)
			r.Get("/{id}/horoscope/monthly", app.HoroscopeMonthly)
		})

		r.Get("/v1/horoscope/daily", app.HoroscopeDaily)

		r.Route("/v1/billing", func(r chi.Router) {
			r.Post("/checkout", app.BillingCheckout)
			r.Get("/portal", app.BillingPortal)
		})
	})

	return r
}
