// Package main provides the entrypoint for the PrepQuest API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepquest/prepquest/internal/api"
	"github.com/prepquest/prepquest/internal/api/middleware"
	"github.com/prepquest/prepquest/internal/audience"
	"github.com/prepquest/prepquest/internal/auth"
	"github.com/prepquest/prepquest/internal/campaign"
	"github.com/prepquest/prepquest/internal/database"
	"github.com/prepquest/prepquest/internal/device"
	"github.com/prepquest/prepquest/internal/dispatch"
	"github.com/prepquest/prepquest/internal/notification"
	"github.com/prepquest/prepquest/internal/quest"
	"github.com/prepquest/prepquest/internal/rateguard"
	"github.com/prepquest/prepquest/internal/selection"
	"github.com/prepquest/prepquest/internal/telemetry"
	"github.com/prepquest/prepquest/internal/user"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "prepquest-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting PrepQuest API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize JWT service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
	})

	// Initialize domain services
	userService := user.NewService(user.NewPostgresRepository(pool), log)
	log.Info().Msg("user service initialized")

	deviceRegistry := device.NewRegistry(device.NewPostgresRepository(pool), log)
	log.Info().Msg("device registry initialized")

	guard := rateguard.NewGuard(rateguard.NewPostgresRepository(pool), log)

	questEngine := selection.NewEngine(selection.Config{
		Domain:    selection.DomainQuest,
		Templates: selection.MustLoad(selection.LoadQuestTemplates, log),
		Logger:    log,
	})
	questService := quest.NewService(quest.NewPostgresRepository(pool), userService, questEngine, log)
	log.Info().Msg("quest service initialized")

	gateway := dispatch.NewHTTPGateway(dispatch.HTTPGatewayConfig{
		BaseURL: os.Getenv("PUSH_GATEWAY_URL"),
		APIKey:  os.Getenv("PUSH_GATEWAY_KEY"),
		Logger:  log,
	})

	notifEngine := selection.NewEngine(selection.Config{
		Domain:    selection.DomainNotification,
		Templates: selection.MustLoad(selection.LoadNotificationTemplates, log),
		Logger:    log,
	})
	notificationService := notification.NewService(
		notification.NewPostgresRepository(pool),
		userService,
		deviceRegistry,
		questService,
		guard,
		gateway,
		notifEngine,
		log,
	)

	resolver := audience.NewResolver(userService, log)
	orchestrator := campaign.NewOrchestrator(
		campaign.NewPostgresRepository(pool),
		resolver,
		deviceRegistry,
		gateway,
		log,
	)
	log.Info().Msg("campaign orchestrator initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:             Version,
		BuildTime:           BuildTime,
		Logger:              log,
		ServiceName:         serviceName,
		Metrics:             metrics,
		JWTService:          jwtService,
		UserService:         userService,
		DeviceRegistry:      deviceRegistry,
		QuestService:        questService,
		NotificationService: notificationService,
		Orchestrator:        orchestrator,
		Guard:               guard,
		DB:                  pool,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
