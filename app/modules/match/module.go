package match

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"

	"github.com/north-end-collective/matchday-bot/app/eventbus"
	matchservice "github.com/north-end-collective/matchday-bot/app/modules/match/application"
	matchhandlers "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/handlers"
	"github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/markers"
	matchqueue "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/queue"
	matchdb "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/repositories"
	matchsubscribers "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/subscribers"
	matchutil "github.com/north-end-collective/matchday-bot/app/modules/match/utils"
	"github.com/north-end-collective/matchday-bot/config"
	"github.com/north-end-collective/matchday-bot/internal/observability"
)

// Module bundles the match scheduling service with its infrastructure.
type Module struct {
	Service     matchservice.Service
	Queue       *matchqueue.Service
	subscribers *matchsubscribers.Subscribers
	logger      *slog.Logger
}

// NewModule wires repositories, marker store, queue, service, subscribers,
// and HTTP routes together.
func NewModule(
	ctx context.Context,
	cfg *config.Config,
	db *bun.DB,
	js jetstream.JetStream,
	bus eventbus.EventBus,
	httpRouter chi.Router,
	logger *slog.Logger,
	metrics observability.MatchMetrics,
	tracer trace.Tracer,
) (*Module, error) {
	logger.InfoContext(ctx, "Initializing match module")

	matchRepo := &matchdb.MatchDBImpl{DB: db}
	taskRepo := &matchdb.TaskDBImpl{DB: db}

	kv, err := markers.NewBucket(ctx, js)
	if err != nil {
		return nil, fmt.Errorf("failed to create marker bucket: %w", err)
	}
	markerStore := markers.NewStore(kv, logger, metrics)

	queueService, err := matchqueue.NewService(ctx, db, logger, cfg.Postgres.DSN, metrics, bus, matchRepo, taskRepo, markerStore, cfg.Scheduler.BeatInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue service: %w", err)
	}

	service := matchservice.NewMatchService(
		matchRepo,
		taskRepo,
		queueService,
		markerStore,
		matchutil.RealClock{},
		cfg.Scheduler.Lookahead,
		cfg.Scheduler.StatusCacheTTL,
		logger,
		metrics,
		tracer,
	)

	// The periodic beat drives the same window pass the HTTP endpoint does.
	queueService.SetReconcileFunc(func(ctx context.Context) error {
		_, err := service.EnsureWindowScheduled(ctx)
		return err
	})

	subscribers := matchsubscribers.NewSubscribers(bus, matchRepo, logger)

	if httpRouter != nil {
		handlers := matchhandlers.NewMatchHandlers(service, queueService.HealthCheck, logger)
		limiter := matchhandlers.NewIPRateLimiter(10, 20)
		httpRouter.Get("/healthz", handlers.HandleHealth)
		httpRouter.Route("/api", func(r chi.Router) {
			r.Use(matchhandlers.RateLimitMiddleware(limiter))
			r.Use(matchhandlers.RequireRole(cfg.JWT.Secret, matchhandlers.AdminRole))
			handlers.RegisterRoutes(r)
		})
	}

	return &Module{
		Service:     service,
		Queue:       queueService,
		subscribers: subscribers,
		logger:      logger,
	}, nil
}

// Start begins queue processing and event subscriptions.
func (m *Module) Start(ctx context.Context) error {
	if err := m.subscribers.Start(ctx); err != nil {
		return fmt.Errorf("failed to start subscribers: %w", err)
	}
	if err := m.Queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}
	m.logger.InfoContext(ctx, "Match module started")
	return nil
}

// Stop shuts the queue down. Subscriptions end with the context.
func (m *Module) Stop(ctx context.Context) error {
	if err := m.Queue.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop queue: %w", err)
	}
	m.logger.InfoContext(ctx, "Match module stopped")
	return nil
}
