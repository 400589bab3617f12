package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"reelsmith/internal/ratelimit"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, limiter *ratelimit.Limiter, cfg RouterConfig, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS: restrict origins when configured, otherwise allow all (dev mode)
	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check — public, no auth required
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// Auth endpoints are public but IP rate-limited
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(limiter))
			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
		})

		// Everything else requires an approved account
		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)
			r.Use(RateLimit(limiter))

			// Jobs
			r.Post("/upload", h.UploadJob)
			r.Get("/jobs", h.ListJobs)
			r.Get("/jobs/{id}", h.GetJob)
			r.Delete("/jobs/{id}", h.DeleteJob)
			r.Post("/jobs/{id}/regenerate", h.RegenerateJob)
			r.Get("/download/{id}", h.DownloadJob)

			// Variations
			r.Post("/jobs/{id}/generate-variations", h.GenerateVariations)
			r.Get("/jobs/{id}/variations", h.ListVariations)
			r.Post("/jobs/{id}/variations/{variationId}/favorite", h.SetVariationFavorite)

			// Budget and models
			r.Get("/budget", h.GetBudget)
			r.Post("/budget", h.SetBudget)
			r.Get("/models", h.ListModels)
			r.Post("/models/estimate", h.Estimate)
			r.Get("/models/preferences", h.GetPreferences)
			r.Put("/models/preferences", h.UpdatePreferences)

			// Admin
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/admin/users", h.ListUsers)
				r.Post("/admin/users/{id}/approve", h.ApproveUser)
				r.Delete("/admin/users/{id}", h.DeleteUser)
			})
		})
	})

	return r
}
