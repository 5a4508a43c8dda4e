package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/stridefit/stride-auth/internal/auth"
	"github.com/stridefit/stride-auth/internal/handlers"
	"github.com/stridefit/stride-auth/internal/middleware"
)

// RegisterRoutes registers all application routes.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	authenticator *auth.Authenticator,
	adminGate *auth.AdminGate,
) {
	authLimit := middleware.DefaultAuthRateLimit()
	emailLimit := middleware.DefaultEmailRateLimit()

	// Public routes. Credential endpoints are rate limited per IP;
	// email-sending endpoints more tightly.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(authLimit))
		r.Post("/auth/provider", authHandler.ProviderLogin)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/verify-email/confirm", authHandler.ConfirmVerification)
		r.Post("/auth/password-reset/confirm", authHandler.ConfirmReset)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(emailLimit))
		r.Post("/auth/verify-email/request", authHandler.RequestVerification)
		r.Post("/auth/password-reset/request", authHandler.RequestReset)
	})

	// Authenticated routes.
	router.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware)
		r.Get("/auth/me", authHandler.Me)
	})

	// Operator routes, gated on the shared admin secret.
	router.Group(func(r chi.Router) {
		r.Use(auth.AdminOnly(adminGate))
		r.Get("/admin/accounts/{id}", adminHandler.GetAccount)
	})
}
