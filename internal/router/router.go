package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"rigshop-api/internal/handler"
	"rigshop-api/internal/middleware"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	CatalogHandler *handler.CatalogHandler
	OrderHandler   *handler.OrderHandler
	AdminHandler   *handler.AdminHandler
	AuthHandler    *handler.AuthHandler
	AuthMiddleware func(http.Handler) http.Handler
	AllowedOrigins []string
	Logger         *zap.Logger
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Token",
			middleware.HeaderUserID, middleware.HeaderUserRole, middleware.HeaderUserEmail},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/health", cfg.Handler.Health)
		r.Get("/ready", cfg.Handler.Ready)
		r.Get("/api/status", cfg.Handler.Status)
	}

	// AUTHENTICATED routes
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api", func(r chi.Router) {
			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Get("/me", cfg.AuthHandler.Me)
					r.Post("/refresh", cfg.AuthHandler.RefreshToken)
					r.Post("/revoke", cfg.AuthHandler.RevokeToken)
				})
			}

			if cfg.CatalogHandler != nil {
				r.Route("/components", func(r chi.Router) {
					r.Get("/", cfg.CatalogHandler.ListComponents)
					r.Get("/{componentId}", cfg.CatalogHandler.GetComponent)
					r.With(middleware.RequireAdmin).Post("/", cfg.CatalogHandler.CreateComponent)
					r.With(middleware.RequireAdmin).Patch("/{componentId}/stock", cfg.CatalogHandler.SetStock)
				})
				r.Route("/configs", func(r chi.Router) {
					r.Get("/", cfg.CatalogHandler.ListConfigurations)
					r.Get("/{configId}", cfg.CatalogHandler.GetConfiguration)
					r.With(middleware.RequireAdmin).Post("/", cfg.CatalogHandler.CreateConfiguration)
				})
			}

			if cfg.OrderHandler != nil {
				r.Route("/orders", func(r chi.Router) {
					r.Post("/", cfg.OrderHandler.CreateOrder)
					r.Get("/", cfg.OrderHandler.ListOrders)
					r.Get("/user/{userId}", cfg.OrderHandler.ListUserOrders)
					r.Get("/{orderId}", cfg.OrderHandler.GetOrder)
				})
			}

			// Admin endpoints
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				if cfg.AdminHandler != nil {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Get("/restocks", cfg.AdminHandler.ListPendingRestocks)
					r.Post("/restocks/run", cfg.AdminHandler.RunRestocks)
				}
				if cfg.AuthHandler != nil {
					r.Post("/tokens", cfg.AuthHandler.IssueToken)
				}
			})
		})
	})

	return r
}
