package router

import (
	"net/http"

	"profilehub-api/internal/handler"
	"profilehub-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	ProfileHandler *handler.ProfileHandler
	AdminHandler   *handler.AdminHandler
	AuthHandler    *handler.AuthHandler
	AuthMiddleware func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Token"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// AUTHENTICATED routes (use Group to apply auth middleware only to these)
	r.Group(func(r chi.Router) {
		// Apply auth middleware only to this group
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			// Auth endpoints
			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Post("/token", cfg.AuthHandler.GenerateToken)
					r.Post("/revoke", cfg.AuthHandler.RevokeToken)
					r.Post("/refresh", cfg.AuthHandler.RefreshToken)
				})
			}

			// Profile endpoints
			if cfg.ProfileHandler != nil {
				r.Route("/profile/{account_id}", func(r chi.Router) {
					r.Post("/command/{command}", cfg.ProfileHandler.Command)
					r.Get("/query", cfg.ProfileHandler.QueryProfile)
				})
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Get("/health", cfg.AdminHandler.GetHealth)
					r.Post("/accounts/{account_id}/provision", cfg.AdminHandler.ProvisionAccount)
					r.Route("/accounts/{account_id}/profiles/{profile_id}", func(r chi.Router) {
						r.Patch("/stats", cfg.AdminHandler.PatchStats)
						r.Put("/items/{item_id}", cfg.AdminHandler.PutItem)
						r.Delete("/items/{item_id}", cfg.AdminHandler.DeleteItem)
					})
				})
			}
		})
	})

	return r
}
