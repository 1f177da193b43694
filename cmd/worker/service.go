package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lmarchetti/taskhive-notifier/internal/chat"
	"github.com/lmarchetti/taskhive-notifier/internal/invites"
	"github.com/lmarchetti/taskhive-notifier/internal/projects"
	"github.com/lmarchetti/taskhive-notifier/pkg/config"
	"github.com/lmarchetti/taskhive-notifier/pkg/docstore"
	"github.com/lmarchetti/taskhive-notifier/pkg/logger"
	"github.com/lmarchetti/taskhive-notifier/pkg/pubsub"
	"github.com/lmarchetti/taskhive-notifier/pkg/redis"
)

type ServiceParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	Docstore        *docstore.Client
	Redis           *redis.Client
	PubSub          *pubsub.Client
	InviteConsumer  *invites.Consumer
	ProjectConsumer *projects.Consumer
	ChatConsumer    *chat.Consumer
}

type Service struct {
	cfg             *config.Config
	logg            *logger.Logger
	docstore        *docstore.Client
	redis           *redis.Client
	pubsub          *pubsub.Client
	inviteConsumer  *invites.Consumer
	projectConsumer *projects.Consumer
	chatConsumer    *chat.Consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Docstore == nil {
		return nil, errors.New("document store client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.InviteConsumer == nil {
		return nil, errors.New("invite consumer is required")
	}
	if params.ProjectConsumer == nil {
		return nil, errors.New("project consumer is required")
	}
	if params.ChatConsumer == nil {
		return nil, errors.New("chat consumer is required")
	}

	return &Service{
		cfg:             params.Config,
		logg:            params.Logger,
		docstore:        params.Docstore,
		redis:           params.Redis,
		pubsub:          params.PubSub,
		inviteConsumer:  params.InviteConsumer,
		projectConsumer: params.ProjectConsumer,
		chatConsumer:    params.ChatConsumer,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "docstore", s.docstore.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 3)
	go func() {
		errCh <- s.inviteConsumer.Run(ctx)
	}()
	go func() {
		errCh <- s.projectConsumer.Run(ctx)
	}()
	go func() {
		errCh <- s.chatConsumer.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "consumer stopped unexpectedly", err)
				return err
			}
			return err
		}
	}
}

// Router serves liveness, readiness and metrics for the worker. There is no
// request-serving API surface, this exists for the orchestrator and scrapers.
func (s *Service) Router(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz/live", func(w http.ResponseWriter, req *http.Request) {
		writeHealth(w, http.StatusOK, map[string]string{"status": "ok", "env": s.cfg.App.Env})
	})
	r.Get("/healthz/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		if err := s.ensureReadiness(ctx); err != nil {
			writeHealth(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeHealth(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return r
}

func writeHealth(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
