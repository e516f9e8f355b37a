package matchservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	matchdb "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/repositories"
	matchutil "github.com/north-end-collective/matchday-bot/app/modules/match/utils"
	"github.com/north-end-collective/matchday-bot/internal/observability"
	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

// MatchService implements the Service interface.
type MatchService struct {
	matchRepo   matchdb.MatchRepository
	taskRepo    matchdb.TaskRepository
	queue       TaskQueue
	markers     MarkerStore
	statusCache *statusCache
	clock       matchutil.Clock
	lookahead   time.Duration
	logger      *slog.Logger
	metrics     observability.MatchMetrics
	tracer      trace.Tracer
}

var _ Service = (*MatchService)(nil)

// NewMatchService creates a new MatchService.
func NewMatchService(
	matchRepo matchdb.MatchRepository,
	taskRepo matchdb.TaskRepository,
	queue TaskQueue,
	markers MarkerStore,
	clock matchutil.Clock,
	lookahead time.Duration,
	statusCacheTTL time.Duration,
	logger *slog.Logger,
	metrics observability.MatchMetrics,
	tracer trace.Tracer,
) *MatchService {
	return &MatchService{
		matchRepo:   matchRepo,
		taskRepo:    taskRepo,
		queue:       queue,
		markers:     markers,
		statusCache: newStatusCache(clock, statusCacheTTL),
		clock:       clock,
		lookahead:   lookahead,
		logger:      logger,
		metrics:     metrics,
		tracer:      tracer,
	}
}

// operationFunc is the signature for service operation functions.
type operationFunc func(ctx context.Context) error

// withTelemetry wraps a service operation with tracing, metrics, and panic
// recovery. This standardizes observability across all service methods.
func (s *MatchService) withTelemetry(
	ctx context.Context,
	operationName string,
	matchID int64,
	op operationFunc,
) (err error) {
	ctx, span := s.tracer.Start(ctx, operationName, trace.WithAttributes(
		attribute.String("operation", operationName),
		attribute.Int64("match_id", matchID),
	))
	defer span.End()

	s.metrics.RecordOperationAttempt(ctx, operationName, "MatchService")

	startTime := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration(ctx, operationName, "MatchService", time.Since(startTime))
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				attr.ExtractCorrelationID(ctx),
				attr.Int64("match_id", matchID),
				attr.Error(err),
			)
			s.metrics.RecordOperationFailure(ctx, operationName, "MatchService")
			span.RecordError(err)
		}
	}()

	if err = op(ctx); err != nil {
		wrappedErr := fmt.Errorf("%s: %w", operationName, err)
		s.logger.ErrorContext(ctx, "Operation failed with error",
			attr.ExtractCorrelationID(ctx),
			attr.String("operation", operationName),
			attr.Int64("match_id", matchID),
			attr.Error(wrappedErr),
		)
		s.metrics.RecordOperationFailure(ctx, operationName, "MatchService")
		span.RecordError(wrappedErr)
		return wrappedErr
	}

	s.metrics.RecordOperationSuccess(ctx, operationName, "MatchService")
	return nil
}
