package matchqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"github.com/uptrace/bun"

	"github.com/north-end-collective/matchday-bot/app/eventbus"
	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/markers"
	matchdb "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/repositories"
	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

// MatchQueue is the queue name dedicated to match automation jobs.
const MatchQueue = "matchday"

// jobKinds are the job types owned by this module, in river_job.kind form.
var jobKinds = []string{
	ThreadCreateJobArgs{}.Kind(),
	LiveReportingStartJobArgs{}.Kind(),
}

// Metrics is the subset of match metrics the queue service records.
type Metrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, duration time.Duration)
}

// QueueService is the contract for delayed match jobs.
type QueueService interface {
	// ScheduleThreadCreate enqueues the thread-creation job for eta and
	// returns the queue job ID.
	ScheduleThreadCreate(ctx context.Context, matchID, taskRowID int64, eta time.Time) (int64, error)
	// ScheduleLiveReportingStart enqueues the live-reporting job for eta and
	// returns the queue job ID.
	ScheduleLiveReportingStart(ctx context.Context, matchID, taskRowID int64, eta time.Time) (int64, error)
	// CancelJob cancels one pending job. Cancelling an already-finished or
	// unknown job is not an error.
	CancelJob(ctx context.Context, jobID int64) error
	// JobState returns the normalized state of one job. A missing job is
	// reported as NOT_FOUND with a nil error; ERROR means the queue itself
	// could not be consulted.
	JobState(ctx context.Context, jobID int64) (matchtypes.QueueState, error)
	// DrainMatchJobs cancels every pending match job and returns how many
	// were cancelled.
	DrainMatchJobs(ctx context.Context) (int, error)
	// ListMatchJobs returns all match jobs for the monitoring endpoint.
	ListMatchJobs(ctx context.Context) ([]JobInfo, error)
	HealthCheck(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

var _ QueueService = (*Service)(nil)

// Service schedules match jobs through River.
type Service struct {
	client    *river.Client[pgx.Tx]
	pool      *pgxpool.Pool
	db        *bun.DB
	logger    *slog.Logger
	metrics   Metrics
	reconcile func(ctx context.Context) error
}

// NewService creates the River-backed queue service. The reconcile beat runs
// every beatInterval once Start is called; wire its handler with
// SetReconcileFunc before starting.
func NewService(ctx context.Context, bunDB *bun.DB, logger *slog.Logger, dsn string, metrics Metrics, bus eventbus.EventBus, matchRepo matchdb.MatchRepository, taskRepo matchdb.TaskRepository, markerStore *markers.Store, beatInterval time.Duration) (*Service, error) {
	ctxLogger := logger.With(
		attr.String("operation", "new_match_queue_service"),
		attr.String("component", "river_queue"),
	)

	start := time.Now()
	metrics.RecordOperationAttempt(ctx, "initialize_service", "river")

	ctxLogger.Info("Initializing match queue service")

	// River needs pgx, not database/sql.
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		ctxLogger.Error("Failed to parse DSN for River", attr.Error(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", "river")
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		ctxLogger.Error("Failed to create pgx pool for River", attr.Error(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", "river")
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		ctxLogger.Error("Failed to ping database for River", attr.Error(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", "river")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	service := &Service{
		pool:    pool,
		db:      bunDB,
		logger:  ctxLogger,
		metrics: metrics,
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewThreadCreateWorker(ctxLogger, bus, matchRepo, taskRepo, markerStore))
	river.AddWorker(workers, NewLiveReportingStartWorker(ctxLogger, bus, matchRepo, taskRepo, markerStore))
	river.AddWorker(workers, NewReconcileWorker(ctxLogger, service))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
			MatchQueue:         {MaxWorkers: 5},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(beatInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return ReconcileJobArgs{}, &river.InsertOpts{Queue: MatchQueue}
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		pool.Close()
		ctxLogger.Error("Failed to create River client", attr.Error(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", "river")
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}
	service.client = riverClient

	duration := time.Since(start)
	metrics.RecordOperationSuccess(ctx, "initialize_service", "river")
	metrics.RecordOperationDuration(ctx, "initialize_service", "river", duration)

	ctxLogger.Info("Match queue service initialized successfully")
	return service, nil
}

// SetReconcileFunc installs the handler invoked by the periodic reconcile
// beat. Must be called before Start.
func (s *Service) SetReconcileFunc(fn func(ctx context.Context) error) {
	s.reconcile = fn
}

// Start starts the River queue service.
func (s *Service) Start(ctx context.Context) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "start_service", "river")

	s.logger.Info("Starting match queue service")

	if err := s.client.Start(ctx); err != nil {
		s.logger.Error("Failed to start River client", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "start_service", "river")
		return fmt.Errorf("failed to start River client: %w", err)
	}

	duration := time.Since(start)
	s.metrics.RecordOperationSuccess(ctx, "start_service", "river")
	s.metrics.RecordOperationDuration(ctx, "start_service", "river", duration)

	s.logger.Info("Match queue service started successfully")
	return nil
}

// Stop stops the River queue service and closes its pool.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "stop_service", "river")

	s.logger.Info("Stopping match queue service")

	if err := s.client.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop River client", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "stop_service", "river")
		return fmt.Errorf("failed to stop River client: %w", err)
	}
	s.pool.Close()

	duration := time.Since(start)
	s.metrics.RecordOperationSuccess(ctx, "stop_service", "river")
	s.metrics.RecordOperationDuration(ctx, "stop_service", "river", duration)

	s.logger.Info("Match queue service stopped successfully")
	return nil
}

// ScheduleThreadCreate enqueues the thread-creation job for eta.
func (s *Service) ScheduleThreadCreate(ctx context.Context, matchID, taskRowID int64, eta time.Time) (int64, error) {
	return s.scheduleJob(ctx, "schedule_thread_create", ThreadCreateJobArgs{MatchID: matchID, TaskRowID: taskRowID}, matchID, eta)
}

// ScheduleLiveReportingStart enqueues the live-reporting job for eta.
func (s *Service) ScheduleLiveReportingStart(ctx context.Context, matchID, taskRowID int64, eta time.Time) (int64, error) {
	return s.scheduleJob(ctx, "schedule_live_reporting_start", LiveReportingStartJobArgs{MatchID: matchID, TaskRowID: taskRowID}, matchID, eta)
}

func (s *Service) scheduleJob(ctx context.Context, operation string, args river.JobArgs, matchID int64, eta time.Time) (int64, error) {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, operation, "river")

	ctxLogger := s.logger.With(
		attr.Int64("match_id", matchID),
		attr.Time("eta", eta),
		attr.String("operation", operation),
	)

	ctxLogger.Info("Scheduling match job")

	// An eta in the past is fine: River runs the job immediately, which is
	// exactly what catch-up scheduling wants.
	jobResult, err := s.client.Insert(ctx, args, &river.InsertOpts{
		Queue:       MatchQueue,
		ScheduledAt: eta,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true, // one live job per task row
		},
	})
	if err != nil {
		ctxLogger.Error("Failed to schedule match job", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, operation, "river")
		return 0, fmt.Errorf("failed to schedule match job: %w", err)
	}

	duration := time.Since(start)
	s.metrics.RecordOperationSuccess(ctx, operation, "river")
	s.metrics.RecordOperationDuration(ctx, operation, "river", duration)

	ctxLogger.Info("Match job scheduled successfully",
		attr.Duration("delay", time.Until(eta)),
		attr.Int64("job_id", jobResult.Job.ID),
		attr.Bool("duplicate", jobResult.UniqueSkippedAsDuplicate))
	return jobResult.Job.ID, nil
}

// CancelJob cancels one pending job.
func (s *Service) CancelJob(ctx context.Context, jobID int64) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "cancel_job", "river")

	_, err := s.client.JobCancel(ctx, jobID)
	if err != nil && !errors.Is(err, rivertype.ErrNotFound) {
		s.logger.Error("Failed to cancel job",
			attr.Int64("job_id", jobID),
			attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "cancel_job", "river")
		return fmt.Errorf("failed to cancel job %d: %w", jobID, err)
	}

	duration := time.Since(start)
	s.metrics.RecordOperationSuccess(ctx, "cancel_job", "river")
	s.metrics.RecordOperationDuration(ctx, "cancel_job", "river", duration)

	s.logger.Info("Job cancelled", attr.Int64("job_id", jobID))
	return nil
}

// JobState returns the normalized state of one job.
func (s *Service) JobState(ctx context.Context, jobID int64) (matchtypes.QueueState, error) {
	job, err := s.client.JobGet(ctx, jobID)
	if err != nil {
		if errors.Is(err, rivertype.ErrNotFound) {
			return matchtypes.QueueNotFound, nil
		}
		return matchtypes.QueueError, fmt.Errorf("failed to look up job %d: %w", jobID, err)
	}
	return normalizeJobState(job.State), nil
}

// normalizeJobState maps River job states onto the states the admin
// dashboard understands.
func normalizeJobState(state rivertype.JobState) matchtypes.QueueState {
	switch state {
	case rivertype.JobStateAvailable, rivertype.JobStateScheduled, rivertype.JobStatePending:
		return matchtypes.QueuePending
	case rivertype.JobStateRunning:
		return matchtypes.QueueStarted
	case rivertype.JobStateRetryable:
		return matchtypes.QueueRetry
	case rivertype.JobStateCompleted:
		return matchtypes.QueueSuccess
	case rivertype.JobStateDiscarded:
		return matchtypes.QueueFailure
	case rivertype.JobStateCancelled:
		return matchtypes.QueueRevoked
	default:
		return matchtypes.QueuePending
	}
}

// DrainMatchJobs cancels every pending match job.
func (s *Service) DrainMatchJobs(ctx context.Context) (int, error) {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "drain_match_jobs", "river")

	ctxLogger := s.logger.With(attr.String("operation", "drain_match_jobs"))
	ctxLogger.Info("Draining pending match jobs")

	type riverJobRow struct {
		ID   int64  `bun:"id"`
		Kind string `bun:"kind"`
	}

	var jobs []riverJobRow
	err := s.db.NewSelect().
		Table("river_job").
		Column("id", "kind").
		Where("kind IN (?)", bun.In(jobKinds)).
		Where("state IN (?)", bun.In([]string{"available", "scheduled", "pending", "retryable"})).
		Scan(ctx, &jobs)
	if err != nil {
		ctxLogger.Error("Failed to query jobs for draining", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "drain_match_jobs", "river")
		return 0, fmt.Errorf("failed to query jobs for draining: %w", err)
	}

	cancelled := 0
	for _, job := range jobs {
		if _, err := s.client.JobCancel(ctx, job.ID); err != nil {
			ctxLogger.Warn("Failed to cancel job during drain",
				attr.Int64("job_id", job.ID),
				attr.String("job_kind", job.Kind),
				attr.Error(err))
			continue
		}
		cancelled++
	}

	duration := time.Since(start)
	s.metrics.RecordOperationSuccess(ctx, "drain_match_jobs", "river")
	s.metrics.RecordOperationDuration(ctx, "drain_match_jobs", "river", duration)

	ctxLogger.Info("Drain completed",
		attr.Int("total_found", len(jobs)),
		attr.Int("cancelled_count", cancelled))
	return cancelled, nil
}

// ListMatchJobs returns all match jobs for the monitoring endpoint.
func (s *Service) ListMatchJobs(ctx context.Context) ([]JobInfo, error) {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "list_match_jobs", "river")

	type riverJobRow struct {
		ID          int64                  `bun:"id"`
		Kind        string                 `bun:"kind"`
		State       string                 `bun:"state"`
		Args        map[string]interface{} `bun:"args"`
		ScheduledAt *time.Time             `bun:"scheduled_at"`
		CreatedAt   time.Time              `bun:"created_at"`
		Attempt     int16                  `bun:"attempt"`
		MaxAttempts int16                  `bun:"max_attempts"`
	}

	var jobs []riverJobRow
	err := s.db.NewSelect().
		Table("river_job").
		Column("id", "kind", "state", "args", "scheduled_at", "created_at", "attempt", "max_attempts").
		Where("kind IN (?)", bun.In(jobKinds)).
		Order("scheduled_at ASC NULLS LAST", "created_at ASC").
		Scan(ctx, &jobs)
	if err != nil {
		s.logger.Error("Failed to query match jobs", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "list_match_jobs", "river")
		return nil, fmt.Errorf("failed to query match jobs: %w", err)
	}

	result := make([]JobInfo, len(jobs))
	for i, job := range jobs {
		scheduledAt := ""
		if job.ScheduledAt != nil {
			scheduledAt = job.ScheduledAt.Format(time.RFC3339)
		}
		matchID := int64(0)
		if raw, ok := job.Args["match_id"].(float64); ok {
			matchID = int64(raw)
		}

		result[i] = JobInfo{
			ID:          job.ID,
			Kind:        job.Kind,
			MatchID:     matchID,
			State:       job.State,
			ScheduledAt: scheduledAt,
			CreatedAt:   job.CreatedAt.Format(time.RFC3339),
			Attempt:     int(job.Attempt),
			MaxAttempts: int(job.MaxAttempts),
		}
	}

	duration := time.Since(start)
	s.metrics.RecordOperationSuccess(ctx, "list_match_jobs", "river")
	s.metrics.RecordOperationDuration(ctx, "list_match_jobs", "river", duration)

	return result, nil
}

// HealthCheck verifies the queue service is healthy.
func (s *Service) HealthCheck(ctx context.Context) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "health_check", "river")

	if s.client == nil {
		s.metrics.RecordOperationFailure(ctx, "health_check", "river")
		return fmt.Errorf("river client is nil")
	}

	var count int
	err := s.db.NewSelect().
		Table("river_job").
		ColumnExpr("COUNT(*)").
		Scan(ctx, &count)
	if err != nil {
		s.logger.Error("Queue service health check failed", attr.Error(err))
		s.metrics.RecordOperationFailure(ctx, "health_check", "river")
		return fmt.Errorf("queue service health check failed: %w", err)
	}

	duration := time.Since(start)
	s.metrics.RecordOperationSuccess(ctx, "health_check", "river")
	s.metrics.RecordOperationDuration(ctx, "health_check", "river", duration)

	s.logger.Debug("Queue service health check passed", attr.Int("total_jobs", count))
	return nil
}
