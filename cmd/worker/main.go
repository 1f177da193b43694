package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lmarchetti/taskhive-notifier/internal/chat"
	"github.com/lmarchetti/taskhive-notifier/internal/directory"
	"github.com/lmarchetti/taskhive-notifier/internal/invites"
	"github.com/lmarchetti/taskhive-notifier/internal/notifications"
	"github.com/lmarchetti/taskhive-notifier/internal/projects"
	"github.com/lmarchetti/taskhive-notifier/pkg/config"
	"github.com/lmarchetti/taskhive-notifier/pkg/docstore"
	"github.com/lmarchetti/taskhive-notifier/pkg/events/idempotency"
	"github.com/lmarchetti/taskhive-notifier/pkg/logger"
	"github.com/lmarchetti/taskhive-notifier/pkg/messaging"
	"github.com/lmarchetti/taskhive-notifier/pkg/metrics"
	"github.com/lmarchetti/taskhive-notifier/pkg/pubsub"
	"github.com/lmarchetti/taskhive-notifier/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docstoreClient, err := docstore.New(ctx, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap document store", err)
		os.Exit(1)
	}
	defer func() {
		if err := docstoreClient.Close(); err != nil {
			logg.Error(ctx, "error closing document store", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub", err)
		}
	}()

	messagingClient, err := messaging.New(ctx, cfg.GCP, cfg.Messaging, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap messaging", err)
		os.Exit(1)
	}

	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	dispatchMetrics := metrics.NewDispatchMetrics(registry)

	dirRepo := directory.NewRepository(docstoreClient)
	notificationsRepo := notifications.NewRepository(docstoreClient)

	tokenResolver, err := directory.NewTokenResolver(dirRepo, logg)
	if err != nil {
		logg.Error(ctx, "failed to create token resolver", err)
		os.Exit(1)
	}

	inviteConsumer, err := invites.NewConsumer(
		dirRepo,
		notificationsRepo,
		messagingClient,
		pubsubClient.InviteSubscription(),
		idempotencyManager,
		dispatchMetrics,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create invite consumer", err)
		os.Exit(1)
	}

	projectConsumer, err := projects.NewConsumer(
		tokenResolver,
		messagingClient,
		pubsubClient.ProjectSubscription(),
		idempotencyManager,
		dispatchMetrics,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create project consumer", err)
		os.Exit(1)
	}

	chatConsumer, err := chat.NewConsumer(
		dirRepo,
		notificationsRepo,
		messagingClient,
		pubsubClient.ChatSubscription(),
		idempotencyManager,
		dispatchMetrics,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create chat consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:          cfg,
		Logger:          logg,
		Docstore:        docstoreClient,
		Redis:           redisClient,
		PubSub:          pubsubClient,
		InviteConsumer:  inviteConsumer,
		ProjectConsumer: projectConsumer,
		ChatConsumer:    chatConsumer,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	addr := ":" + cfg.App.Port
	httpServer := &http.Server{
		Addr:    addr,
		Handler: service.Router(registry),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "health server stopped unexpectedly", err)
		}
	}()
	defer func() {
		if err := httpServer.Shutdown(context.Background()); err != nil {
			logg.Error(ctx, "error shutting down health server", err)
		}
	}()

	runCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(runCtx, "starting notification worker")

	if err := service.Run(ctx); err != nil && ctx.Err() == nil {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "worker shutting down gracefully")
}
