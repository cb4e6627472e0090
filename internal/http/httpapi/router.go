package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mediaqueue/internal/http/handlers"
	"mediaqueue/internal/middleware"
)

// Options configures the HTTP surface.
type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	StaticRoot      string // serve persisted artifacts under /static when set
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.Locale(opts.DefaultLocale),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin))
	}

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.JobsCreate)
		r.Get("/", app.JobsList)
		r.Get("/{id}", app.JobGet)
		r.Post("/{id}/cancel", app.JobCancel)
		r.Post("/{id}/retry", app.JobRetry)
	})

	r.Route("/v1/credentials", func(r chi.Router) {
		r.Get("/", app.CredentialsList)
		r.Put("/{provider}", app.CredentialsPut)
	})

	if opts.StaticRoot != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticRoot)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
