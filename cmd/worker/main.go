// Package main provides the entrypoint for the PrepQuest background worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepquest/prepquest/internal/audience"
	"github.com/prepquest/prepquest/internal/campaign"
	"github.com/prepquest/prepquest/internal/database"
	"github.com/prepquest/prepquest/internal/device"
	"github.com/prepquest/prepquest/internal/dispatch"
	"github.com/prepquest/prepquest/internal/notification"
	"github.com/prepquest/prepquest/internal/quest"
	"github.com/prepquest/prepquest/internal/rateguard"
	"github.com/prepquest/prepquest/internal/selection"
	"github.com/prepquest/prepquest/internal/user"
	"github.com/prepquest/prepquest/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "prepquest-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting PrepQuest worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := worker.LoadConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load worker config")
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
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Wire domain services
	userService := user.NewService(user.NewPostgresRepository(pool), log)
	deviceRegistry := device.NewRegistry(device.NewPostgresRepository(pool), log)
	guard := rateguard.NewGuard(rateguard.NewPostgresRepository(pool), log)
	resolver := audience.NewResolver(userService, log)

	gateway := dispatch.NewHTTPGateway(dispatch.HTTPGatewayConfig{
		BaseURL: os.Getenv("PUSH_GATEWAY_URL"),
		APIKey:  os.Getenv("PUSH_GATEWAY_KEY"),
		Logger:  log,
	})

	questEngine := selection.NewEngine(selection.Config{
		Domain:    selection.DomainQuest,
		Templates: selection.MustLoad(selection.LoadQuestTemplates, log),
		Logger:    log,
	})
	questService := quest.NewService(quest.NewPostgresRepository(pool), userService, questEngine, log)

	notifEngine := selection.NewEngine(selection.Config{
		Domain:    selection.DomainNotification,
		Templates: selection.MustLoad(selection.LoadNotificationTemplates, log),
		Logger:    log,
	})
	notifier := notification.NewService(
		notification.NewPostgresRepository(pool),
		userService,
		deviceRegistry,
		questService,
		guard,
		gateway,
		notifEngine,
		log,
	)

	orchestrator := campaign.NewOrchestrator(
		campaign.NewPostgresRepository(pool),
		resolver,
		deviceRegistry,
		gateway,
		log,
	)

	jobs := worker.NewJobs(worker.JobsConfig{
		Orchestrator:  orchestrator,
		Notifier:      notifier,
		Resolver:      resolver,
		Guard:         guard,
		InactiveHours: cfg.InactiveHours,
		Logger:        log,
	})

	// Health endpoint for Cloud Run
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Prefer the Pub/Sub trigger; fall back to local tickers.
	if cfg.PubSubEnabled() {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			Jobs:             jobs,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
				cancel()
			}
		}()
	} else {
		log.Info().Msg("pubsub not configured, using local scheduler")

		scheduler, err := worker.NewScheduler(jobs, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create scheduler")
		}
		go scheduler.Run(ctx)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
