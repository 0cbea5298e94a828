package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pixshop/internal/http/handlers"
	"pixshop/internal/middleware"
)

// Options configures the middleware stack.
type Options struct {
	Logger             zerolog.Logger
	AllowedOrigins     []string
	RateLimitPerMinute int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	limit := middleware.RateLimit(opts.RateLimitPerMinute, time.Minute)

	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		middleware.Recover(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/styles/save", app.SaveStyle)

	r.Route("/v1/presets", func(r chi.Router) {
		r.Get("/", app.ListPresets)
		r.Post("/", app.AddPreset)
		r.Put("/", app.ReplacePresets)
		r.Delete("/", app.ClearPresets)
		r.Get("/export", app.ExportPresets)
		r.Post("/import", app.ImportPresets)
		r.Get("/events", app.PresetEvents)
		r.Delete("/{id}", app.DeletePreset)
		r.With(limit).Post("/smart-save", app.SmartSave)
	})

	// Routes below call the generation service.
	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Post("/v1/styles/extract", app.ExtractStyle)
		r.Post("/v1/prompts/refine", app.RefinePrompt)
		r.Post("/v1/compose/{task}", app.Compose)
		r.Post("/v1/generate/{task}", app.Generate)
		r.Post("/v1/preview", app.Preview)
	})

	return r
}
