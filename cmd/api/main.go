package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brasshelm/birdtext/internal/auth"
	"github.com/brasshelm/birdtext/internal/background"
	"github.com/brasshelm/birdtext/internal/config"
	"github.com/brasshelm/birdtext/internal/database"
	"github.com/brasshelm/birdtext/internal/handlers"
	middlewareCustom "github.com/brasshelm/birdtext/internal/middleware"
	"github.com/brasshelm/birdtext/internal/models"
	"github.com/brasshelm/birdtext/internal/repositories"
	"github.com/brasshelm/birdtext/internal/routes"
	"github.com/brasshelm/birdtext/internal/services"
	"github.com/brasshelm/birdtext/internal/voipms"
	pkgauth "github.com/brasshelm/birdtext/pkg/auth"
	pkghttp "github.com/brasshelm/birdtext/pkg/http"
	pkglogger "github.com/brasshelm/birdtext/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if !cfg.Auth.EnforceCSRF {
		logger.Warn("CSRF enforcement is DISABLED; state-changing requests will not be verified")
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	contactRepo := repositories.NewContactRepository(db)
	messageRepo := repositories.NewMessageRepository(db)

	// Security services
	auditLogger := pkglogger.NewAuditLogger(logger)

	var alerter services.SecurityAlerter
	if cfg.Alert.Enabled {
		alertService, err := services.NewAWSSESAlertService(
			cfg.Alert.AWSRegion,
			cfg.Alert.FromAddress,
			cfg.Alert.AdminEmail,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize alert service", slog.Any("error", err))
			os.Exit(1)
		}
		alerter = alertService
	}

	loginGuard := services.NewLoginGuard(loginAttemptRepo, alerter, auditLogger, logger)

	// Cleanup manager for stale login attempt history
	cleanupManager := background.NewCleanupManager(loginGuard, logger, cfg.Auth.CleanupInterval)

	// Session manager
	sessionManager := auth.NewSessionManager(cfg.Auth.SessionSecret, cfg.Auth.SessionExpiry)

	// SMS provider client
	smsClient := voipms.NewClient(&cfg.VoipMs, logger)

	// Trusted proxy config for client IP extraction
	ipConfig := &pkghttp.IPConfig{
		TrustedProxies: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userRepo, loginGuard, sessionManager, auditLogger, ipConfig, cfg.Server.IsProduction())
	contactsHandler := handlers.NewContactsHandler(contactRepo)
	messagesHandler := handlers.NewMessagesHandler(messageRepo, contactRepo, smsClient)
	webhooksHandler := handlers.NewWebhooksHandler(contactRepo, messageRepo, cfg.VoipMs.WebhookKey, logger)

	// Bootstrap first user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureInitialUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure initial user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	router.Route("/api", func(r chi.Router) {
		routes.RegisterRoutes(
			r,
			authHandler,
			contactsHandler,
			messagesHandler,
			webhooksHandler,
			sessionManager,
			cfg.Auth.EnforceCSRF,
			logger,
			auditLogger,
		)
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
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

// ensureInitialUser creates the first inbox user if INITIAL_USERNAME and
// INITIAL_PASSWORD are set
func ensureInitialUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	username := os.Getenv("INITIAL_USERNAME")
	password := os.Getenv("INITIAL_PASSWORD")
	email := os.Getenv("INITIAL_EMAIL")

	if username == "" || password == "" {
		logger.Info("no INITIAL_USERNAME or INITIAL_PASSWORD set, skipping user creation")
		return nil
	}

	_, err := userRepo.GetByUsername(ctx, username)
	if err == nil {
		logger.Info("initial user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if initial user exists: %w", err)
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash initial password: %w", err)
	}

	_, err = userRepo.Create(ctx, &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return fmt.Errorf("failed to create initial user: %w", err)
	}

	logger.Info("initial user created", slog.String("username", username))
	return nil
}
