package matchqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/riverqueue/river"

	"github.com/north-end-collective/matchday-bot/app/eventbus"
	matchevents "github.com/north-end-collective/matchday-bot/app/modules/match/domain/events"
	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/markers"
	matchdb "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/repositories"
	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

// ThreadCreateWorker executes the thread-creation job: it flips the task row
// to RUNNING, publishes the create command to the bot, and clears the marker.
type ThreadCreateWorker struct {
	river.WorkerDefaults[ThreadCreateJobArgs]
	logger    *slog.Logger
	bus       eventbus.EventBus
	matchRepo matchdb.MatchRepository
	taskRepo  matchdb.TaskRepository
	markers   *markers.Store
}

// NewThreadCreateWorker creates the thread-creation worker.
func NewThreadCreateWorker(logger *slog.Logger, bus eventbus.EventBus, matchRepo matchdb.MatchRepository, taskRepo matchdb.TaskRepository, markerStore *markers.Store) *ThreadCreateWorker {
	return &ThreadCreateWorker{
		logger:    logger,
		bus:       bus,
		matchRepo: matchRepo,
		taskRepo:  taskRepo,
		markers:   markerStore,
	}
}

// Work runs the thread-creation job.
func (w *ThreadCreateWorker) Work(ctx context.Context, job *river.Job[ThreadCreateJobArgs]) error {
	ctxLogger := w.logger.With(
		attr.Int64("match_id", job.Args.MatchID),
		attr.Int64("job_id", job.ID),
		attr.String("job_kind", job.Args.Kind()),
	)

	match, err := w.matchRepo.GetByID(ctx, job.Args.MatchID)
	if err != nil {
		if errors.Is(err, matchdb.ErrNotFound) {
			// The match was deleted after scheduling; retire the task quietly.
			ctxLogger.Warn("Match no longer exists, failing task")
			if err := w.taskRepo.MarkFailed(ctx, job.Args.TaskRowID, "match deleted"); err != nil && !errors.Is(err, matchdb.ErrNotFound) {
				return err
			}
			return w.clearMarker(ctx, ctxLogger, job.Args.MatchID, matchtypes.TaskKindThreadCreation)
		}
		return fmt.Errorf("failed to load match: %w", err)
	}

	if err := w.taskRepo.MarkRunning(ctx, job.Args.TaskRowID, strconv.FormatInt(job.ID, 10)); err != nil && !errors.Is(err, matchdb.ErrNotFound) {
		return fmt.Errorf("failed to mark task running: %w", err)
	}

	if err := publishJSON(w.bus, matchevents.MatchThreadCreate, matchevents.MatchThreadCreatePayload{
		MatchID:     match.ID,
		Opponent:    match.Opponent,
		DateTime:    match.DateTime,
		Competition: match.Competition,
		Venue:       match.Venue,
		IsHomeGame:  match.IsHomeGame,
	}); err != nil {
		// Leave the row RUNNING; River retries the job and the publish is
		// idempotent on the bot side.
		ctxLogger.Error("Failed to publish thread create command", attr.Error(err))
		return err
	}

	if err := w.taskRepo.MarkSuccess(ctx, job.Args.TaskRowID); err != nil && !errors.Is(err, matchdb.ErrNotFound) {
		return fmt.Errorf("failed to mark task success: %w", err)
	}

	ctxLogger.Info("Thread create command published")
	return w.clearMarker(ctx, ctxLogger, job.Args.MatchID, matchtypes.TaskKindThreadCreation)
}

func (w *ThreadCreateWorker) clearMarker(ctx context.Context, logger *slog.Logger, matchID int64, kind matchtypes.TaskKind) error {
	if err := w.markers.Delete(ctx, matchID, kind); err != nil {
		// The marker-store TTL cleans up eventually; never fail the job on it.
		logger.Warn("Failed to delete marker", attr.Error(err))
	}
	return nil
}

// LiveReportingStartWorker executes the live-reporting job: it flips the
// match to running, publishes the start command, and clears the marker.
type LiveReportingStartWorker struct {
	river.WorkerDefaults[LiveReportingStartJobArgs]
	logger    *slog.Logger
	bus       eventbus.EventBus
	matchRepo matchdb.MatchRepository
	taskRepo  matchdb.TaskRepository
	markers   *markers.Store
}

// NewLiveReportingStartWorker creates the live-reporting worker.
func NewLiveReportingStartWorker(logger *slog.Logger, bus eventbus.EventBus, matchRepo matchdb.MatchRepository, taskRepo matchdb.TaskRepository, markerStore *markers.Store) *LiveReportingStartWorker {
	return &LiveReportingStartWorker{
		logger:    logger,
		bus:       bus,
		matchRepo: matchRepo,
		taskRepo:  taskRepo,
		markers:   markerStore,
	}
}

// Work runs the live-reporting start job.
func (w *LiveReportingStartWorker) Work(ctx context.Context, job *river.Job[LiveReportingStartJobArgs]) error {
	ctxLogger := w.logger.With(
		attr.Int64("match_id", job.Args.MatchID),
		attr.Int64("job_id", job.ID),
		attr.String("job_kind", job.Args.Kind()),
	)

	match, err := w.matchRepo.GetByID(ctx, job.Args.MatchID)
	if err != nil {
		if errors.Is(err, matchdb.ErrNotFound) {
			ctxLogger.Warn("Match no longer exists, failing task")
			if err := w.taskRepo.MarkFailed(ctx, job.Args.TaskRowID, "match deleted"); err != nil && !errors.Is(err, matchdb.ErrNotFound) {
				return err
			}
			return w.clearMarker(ctx, ctxLogger, job.Args.MatchID)
		}
		return fmt.Errorf("failed to load match: %w", err)
	}

	jobID := strconv.FormatInt(job.ID, 10)
	if err := w.taskRepo.MarkRunning(ctx, job.Args.TaskRowID, jobID); err != nil && !errors.Is(err, matchdb.ErrNotFound) {
		return fmt.Errorf("failed to mark task running: %w", err)
	}

	if err := w.matchRepo.SetReportingStatus(ctx, match.ID, matchtypes.ReportingRunning, true, jobID); err != nil {
		return fmt.Errorf("failed to set reporting status: %w", err)
	}

	threadID := ""
	if match.DiscordThreadID != nil {
		threadID = *match.DiscordThreadID
	}
	if err := publishJSON(w.bus, matchevents.LiveReportingStart, matchevents.LiveReportingStartPayload{
		MatchID:  match.ID,
		ThreadID: threadID,
	}); err != nil {
		ctxLogger.Error("Failed to publish live reporting start command", attr.Error(err))
		return err
	}

	if err := w.taskRepo.MarkSuccess(ctx, job.Args.TaskRowID); err != nil && !errors.Is(err, matchdb.ErrNotFound) {
		return fmt.Errorf("failed to mark task success: %w", err)
	}

	ctxLogger.Info("Live reporting start command published")
	return w.clearMarker(ctx, ctxLogger, job.Args.MatchID)
}

func (w *LiveReportingStartWorker) clearMarker(ctx context.Context, logger *slog.Logger, matchID int64) error {
	if err := w.markers.Delete(ctx, matchID, matchtypes.TaskKindLiveReportingStart); err != nil {
		logger.Warn("Failed to delete marker", attr.Error(err))
	}
	return nil
}

// ReconcileWorker runs the periodic reconciliation beat through the handler
// installed with SetReconcileFunc.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileJobArgs]
	logger  *slog.Logger
	service *Service
}

// NewReconcileWorker creates the reconcile-beat worker.
func NewReconcileWorker(logger *slog.Logger, service *Service) *ReconcileWorker {
	return &ReconcileWorker{logger: logger, service: service}
}

// Work runs one reconciliation pass.
func (w *ReconcileWorker) Work(ctx context.Context, job *river.Job[ReconcileJobArgs]) error {
	if w.service.reconcile == nil {
		w.logger.Warn("Reconcile beat fired with no handler installed")
		return nil
	}
	if err := w.service.reconcile(ctx); err != nil {
		w.logger.Error("Reconcile beat failed", attr.Error(err))
		return err
	}
	return nil
}

func publishJSON(bus eventbus.EventBus, topic string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	return bus.Publish(topic, msg)
}
