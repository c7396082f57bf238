// Package api provides the HTTP API for PrepQuest.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prepquest/prepquest/internal/api/handler"
	"github.com/prepquest/prepquest/internal/api/middleware"
	"github.com/prepquest/prepquest/internal/auth"
	"github.com/prepquest/prepquest/internal/campaign"
	"github.com/prepquest/prepquest/internal/device"
	"github.com/prepquest/prepquest/internal/notification"
	"github.com/prepquest/prepquest/internal/quest"
	"github.com/prepquest/prepquest/internal/rateguard"
	"github.com/prepquest/prepquest/internal/user"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	JWTService          *auth.JWTService
	UserService         *user.Service
	DeviceRegistry      *device.Registry
	QuestService        *quest.Service
	NotificationService *notification.Service
	Orchestrator        *campaign.Orchestrator
	Guard               *rateguard.Guard

	// DB is pinged by the readiness endpoint; nil skips the check.
	DB handler.Pinger
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "prepquest-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.DB)
	deviceHandler := handler.NewDeviceHandler(cfg.DeviceRegistry, cfg.Guard)
	questHandler := handler.NewQuestHandler(cfg.QuestService, cfg.Guard)
	accountHandler := handler.NewAccountHandler(cfg.UserService, cfg.DeviceRegistry, cfg.QuestService, cfg.NotificationService, cfg.Logger)
	adminHandler := handler.NewAdminHandler(cfg.Orchestrator, cfg.Guard)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.JWTService)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		// Me endpoints (authenticated) - user-based rate limiting
		r.Route("/me", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit)) // 100 req/min per user

			// Devices
			r.Post("/devices", deviceHandler.RegisterDevice)
			r.Delete("/devices", deviceHandler.UnregisterDevice)

			// Daily quests
			r.Get("/quests", questHandler.ListQuests)
			r.Post("/quests:refresh", questHandler.RefreshQuests)
			r.Post("/quests/{questId}:complete", questHandler.CompleteQuest)
			r.Post("/quests/{questId}:claim", questHandler.ClaimReward)

			// Progress reports
			r.Post("/progress", questHandler.ReportProgress)

			// Account deletion
			r.Delete("/", accountHandler.DeleteAccount)
		})

		// Admin endpoints (authenticated + admin claim)
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RequireAdmin)
			r.Use(standardRateLimit)

			// Audience estimation walks user pages; keep it on the
			// expensive tier.
			r.With(expensiveRateLimit).Post("/audience:estimate", adminHandler.EstimateAudience)

			r.Post("/push", adminHandler.SendPush)
			r.Get("/campaigns/{id}", adminHandler.GetCampaign)
		})
	})

	return r
}
