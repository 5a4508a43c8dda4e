package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stridefit/stride-auth/internal/auth"
	"github.com/stridefit/stride-auth/internal/background"
	"github.com/stridefit/stride-auth/internal/config"
	"github.com/stridefit/stride-auth/internal/database"
	"github.com/stridefit/stride-auth/internal/handlers"
	"github.com/stridefit/stride-auth/internal/middleware"
	"github.com/stridefit/stride-auth/internal/provider"
	"github.com/stridefit/stride-auth/internal/repositories"
	"github.com/stridefit/stride-auth/internal/routes"
	"github.com/stridefit/stride-auth/internal/services"
	pkglogger "github.com/stridefit/stride-auth/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	accountRepo := repositories.NewAccountRepository(db)

	sessions := auth.NewSessionManager(cfg.Auth.SessionSecret, cfg.Auth.SessionExpiry)
	adminGate := auth.NewAdminGate(cfg.Auth.AdminAPISecret, logger)
	if !adminGate.Configured() {
		logger.Warn("ADMIN_API_SECRET is not set, admin endpoints will reject all requests")
	}

	timingDelay := auth.NewTimingDelay(
		time.Duration(cfg.Auth.TimingDelayBaseMs)*time.Millisecond,
		time.Duration(cfg.Auth.TimingDelayRandomMs)*time.Millisecond,
	)
	auditLogger := pkglogger.NewAuditLogger(logger)

	registry := provider.NewRegistry()
	registry.Register(provider.ProviderApple, provider.NewAppleVerifier(
		cfg.Providers.AppleBundleID,
		cfg.Providers.AppleJWKSURL,
		cfg.Providers.AppleKeyCacheTTL,
		nil,
		logger,
	))
	registry.Register(provider.ProviderGoogle, provider.NewGoogleVerifier(
		cfg.Providers.GoogleTokenInfoURL,
		cfg.Providers.GoogleClientIDs,
		nil,
		logger,
	))

	strategies := []auth.Strategy{auth.NewSessionStrategy(sessions, accountRepo)}

	if cfg.Providers.FirebaseProjectID != "" {
		firebaseVerifier, err := provider.NewFirebaseVerifier(context.Background(), cfg.Providers.FirebaseProjectID, logger)
		if err != nil {
			logger.Error("failed to initialize firebase verifier", slog.Any("error", err))
			os.Exit(1)
		}
		registry.Register(provider.ProviderFirebase, firebaseVerifier)
		strategies = append(strategies, auth.NewFirebaseStrategy(firebaseVerifier, accountRepo))
	} else {
		logger.Info("FIREBASE_PROJECT_ID not set, legacy firebase tokens are disabled")
	}

	authenticator := auth.NewAuthenticator(logger, strategies...)

	emailSender, err := services.NewSESSender(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.BaseURL,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email sender", slog.Any("error", err))
		os.Exit(1)
	}

	tokenService := services.NewTokenService(
		accountRepo,
		emailSender,
		cfg.Email.VerificationExpiry,
		cfg.Email.ResetExpiry,
		cfg.Email.ResendCooldown,
		logger,
	)
	identityService := services.NewIdentityService(registry, accountRepo, sessions, auditLogger, logger)
	accountService := services.NewAccountService(
		accountRepo,
		sessions,
		tokenService,
		timingDelay,
		auditLogger,
		logger,
		cfg.Auth.LockoutThreshold,
		cfg.Auth.LockoutDuration,
	)

	authHandler := handlers.NewAuthHandler(identityService, accountService, tokenService)
	adminHandler := handlers.NewAdminHandler(accountRepo)

	cleanupManager := background.NewCleanupManager(accountRepo, logger, cfg.Auth.CleanupInterval)

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middleware.CORS(corsConfig))
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, adminHandler, authenticator, adminGate)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
