package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lumenfolio/portal-backend/api/routes"
	"github.com/lumenfolio/portal-backend/internal/access"
	"github.com/lumenfolio/portal-backend/internal/engagement"
	"github.com/lumenfolio/portal-backend/internal/exports"
	"github.com/lumenfolio/portal-backend/internal/ledger"
	"github.com/lumenfolio/portal-backend/internal/notifications"
	"github.com/lumenfolio/portal-backend/internal/notifier"
	"github.com/lumenfolio/portal-backend/internal/portal"
	"github.com/lumenfolio/portal-backend/internal/proposals"
	"github.com/lumenfolio/portal-backend/internal/resources"
	"github.com/lumenfolio/portal-backend/pkg/config"
	"github.com/lumenfolio/portal-backend/pkg/db"
	"github.com/lumenfolio/portal-backend/pkg/env"
	"github.com/lumenfolio/portal-backend/pkg/logger"
	"github.com/lumenfolio/portal-backend/pkg/mediastore"
	"github.com/lumenfolio/portal-backend/pkg/metrics"
	"github.com/lumenfolio/portal-backend/pkg/migrate"
	"github.com/lumenfolio/portal-backend/pkg/pubsub"
	"github.com/lumenfolio/portal-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	mediaClient, err := mediastore.NewClient(context.Background(), cfg.MediaStore, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create media store client", err)
		os.Exit(1)
	}

	// The events topic is optional: without a GCP project the engagement
	// pipeline writes straight to the event table instead of publishing.
	var pubsubClient *pubsub.Client
	var publisher engagement.Publisher
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create pubsub client", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publisher = engagement.NewEventPublisher(pubsubClient.EventsPublisher())
	} else {
		logg.Warn(context.Background(), "no gcp project configured, engagement events record in-process")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	portalMetrics := metrics.NewPortalMetrics(registry)

	sessionManager, err := access.NewSessionManager(redisClient, cfg.AccessCode.SessionTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}
	accessService, err := access.NewService(sessionManager)
	if err != nil {
		logg.Error(context.Background(), "failed to create access service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), cfg.Downloads.Window)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	proposalsService, err := proposals.NewService(dbClient, proposals.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create proposals service", err)
		os.Exit(1)
	}

	engagementService, err := engagement.NewService(
		engagement.NewRepository(dbClient.DB()),
		publisher,
		portalMetrics,
		logg,
		cfg.PubSub.PublishTimeout,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create engagement service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	var mailer notifier.Mailer
	if cfg.Mailer.BaseURL != "" {
		mailer, err = notifier.NewClient(cfg.Mailer)
		if err != nil {
			logg.Error(context.Background(), "failed to create mail client", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "no mailer configured, outbound email disabled")
		mailer = &notifier.Client{}
	}
	notifierService, err := notifier.NewService(mailer, logg, cfg.Mailer.AdminEmail)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier service", err)
		os.Exit(1)
	}

	resourcesService, err := resources.NewService(resources.ServiceParams{
		DB:         dbClient,
		Repo:       resources.NewRepository(dbClient.DB()),
		Proposals:  proposalsService,
		Media:      mediaClient,
		Ledger:     ledgerService,
		Engagement: engagementService,
		AccessCfg:  cfg.AccessCode,
		MediaCfg:   cfg.MediaStore,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create resources service", err)
		os.Exit(1)
	}

	assembler, err := exports.NewAssembler(mediaClient, ledgerService, portalMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create export assembler", err)
		os.Exit(1)
	}

	portalService, err := portal.NewService(portal.ServiceParams{
		Resources:     resourcesService,
		Access:        accessService,
		Proposals:     proposalsService,
		Ledger:        ledgerService,
		Engagement:    engagementService,
		Exports:       assembler,
		Notifier:      notifierService,
		Notifications: notificationsService,
		Limiter:       redisClient,
		AccessCfg:     cfg.AccessCode,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create portal service", err)
		os.Exit(1)
	}

	deps := routes.Deps{
		Config:        cfg,
		Logger:        logg,
		Registry:      registry,
		DBPinger:      dbClient,
		RedisPinger:   redisClient,
		Portal:        portalService,
		Resources:     resourcesService,
		Proposals:     proposalsService,
		Engagement:    engagementService,
		Notifier:      notifierService,
		Notifications: notificationsService,
	}
	if pubsubClient != nil {
		deps.PubSubPinger = pubsubClient
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(deps),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
