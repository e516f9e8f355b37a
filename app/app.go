package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	nc "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.opentelemetry.io/otel"

	"github.com/north-end-collective/matchday-bot/app/eventbus"
	"github.com/north-end-collective/matchday-bot/app/modules/match"
	"github.com/north-end-collective/matchday-bot/config"
	"github.com/north-end-collective/matchday-bot/internal/observability"
	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

// App owns every long-lived resource of the scheduler process.
type App struct {
	Config *config.Config
	Match  *match.Module

	logger        *slog.Logger
	db            *bun.DB
	natsConn      *nc.Conn
	bus           eventbus.EventBus
	httpServer    *http.Server
	metricsServer *http.Server
}

// NewApp initializes configuration, storage, messaging, and the match module.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.Observability.Environment)

	pgdb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.DSN)))
	db := bun.NewDB(pgdb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn, err := nc.Connect(cfg.NATS.URL, nc.RetryOnFailedConnect(true))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	bus, err := eventbus.NewEventBus(cfg.NATS.URL, logger)
	if err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewPrometheusMetrics(registry)
	tracer := otel.Tracer("matchday-bot")

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	matchModule, err := match.NewModule(ctx, cfg, db, js, bus, router, logger, metrics, tracer)
	if err != nil {
		bus.Close()
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize match module: %w", err)
	}

	a := &App{
		Config:   cfg,
		Match:    matchModule,
		logger:   logger,
		db:       db,
		natsConn: conn,
		bus:      bus,
		httpServer: &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: router,
		},
	}
	if cfg.Observability.MetricsAddress != "" {
		a.metricsServer = observability.MetricsServer(cfg.Observability.MetricsAddress, registry)
	}
	return a, nil
}

// Start brings the module and the HTTP surfaces up. It returns once
// everything is serving; shutdown happens via Stop.
func (a *App) Start(ctx context.Context) error {
	if err := a.Match.Start(ctx); err != nil {
		return err
	}

	go func() {
		a.logger.Info("Admin API listening", attr.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("Admin API server failed", attr.Error(err))
		}
	}()

	if a.metricsServer != nil {
		go func() {
			a.logger.Info("Metrics server listening", attr.String("addr", a.metricsServer.Addr))
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Error("Metrics server failed", attr.Error(err))
			}
		}()
	}

	return nil
}

// Stop shuts everything down in reverse dependency order.
func (a *App) Stop(ctx context.Context) {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Admin API shutdown failed", attr.Error(err))
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Error("Metrics server shutdown failed", attr.Error(err))
		}
	}
	if err := a.Match.Stop(ctx); err != nil {
		a.logger.Error("Match module shutdown failed", attr.Error(err))
	}
	if err := a.bus.Close(); err != nil {
		a.logger.Error("Event bus shutdown failed", attr.Error(err))
	}
	a.natsConn.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Error("Database shutdown failed", attr.Error(err))
	}
	a.logger.Info("Application shut down gracefully")
}
