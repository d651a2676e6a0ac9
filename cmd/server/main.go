package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adpulse-ops/adpulse-backend-go/internal/adapters/ads"
	"github.com/adpulse-ops/adpulse-backend-go/internal/adapters/optimizer"
	"github.com/adpulse-ops/adpulse-backend-go/internal/api"
	"github.com/adpulse-ops/adpulse-backend-go/internal/api/handlers"
	"github.com/adpulse-ops/adpulse-backend-go/internal/config"
	"github.com/adpulse-ops/adpulse-backend-go/internal/core/monitoring"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database"
	"github.com/adpulse-ops/adpulse-backend-go/internal/websocket"
	"github.com/adpulse-ops/adpulse-backend-go/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	logger.Configure(log, cfg.Logging.Level, cfg.Logging.Format)

	log.WithFields(map[string]interface{}{
		"port": cfg.Server.Port,
		"mode": cfg.Server.Mode,
	}).Info("Starting campaign monitoring engine")

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	repos := database.NewRepositories(db)

	hub := websocket.NewHub(log)
	go hub.Run()

	adsClient := ads.NewHTTPClient(cfg.AdsPlatform, log)
	remediator := optimizer.NewHTTPClient(cfg.Optimizer, log)

	engine := monitoring.NewEngine(log)
	lifecycle := monitoring.NewLifecycleManager(repos.Issue, log)
	resolver := monitoring.NewResolver(remediator, lifecycle, log)

	channels := []monitoring.Notifier{
		monitoring.NewLogNotifier(log),
		monitoring.NewWebSocketNotifier(hub),
	}
	if cfg.Notifications.Webhook.Enabled && cfg.Notifications.Webhook.URL != "" {
		channels = append(channels, monitoring.NewWebhookNotifier(cfg.Notifications.Webhook))
	}
	dispatcher := monitoring.NewDispatcher(cfg.Notifications, channels, repos.Notification, log)
	dispatcher.Start()

	query := monitoring.NewQueryService(repos, cfg.Monitoring.HealthWeights)

	scheduler := monitoring.NewScheduler(
		cfg.Monitoring, adsClient, repos.Rule, repos.Session,
		engine, lifecycle, resolver, dispatcher, hub, log,
	)
	scheduler.Run()

	if err := scheduler.Resume(context.Background()); err != nil {
		log.WithError(err).Error("Failed to resume monitoring sessions")
	}

	h := handlers.New(cfg, repos, log, hub, query, lifecycle, scheduler)
	router := api.NewRouter(cfg, h, hub, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")

	scheduler.StopAll()
	dispatcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	log.Info("Shutdown complete")
}
