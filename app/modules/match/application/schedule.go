package matchservice

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/markers"
	matchdb "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/repositories"
	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

// ScheduleMatchTasks ensures both automation tasks exist for one match. With
// force set, existing tasks are revoked first and everything is rebuilt.
func (s *MatchService) ScheduleMatchTasks(ctx context.Context, matchID int64, force bool) (*ReconcileReport, error) {
	report := &ReconcileReport{MatchID: matchID, Actions: []string{}}
	err := s.withTelemetry(ctx, "schedule_match_tasks", matchID, func(ctx context.Context) error {
		match, err := s.loadMatch(ctx, matchID)
		if err != nil {
			return err
		}

		if force {
			actions, err := s.revokeMatchTasks(ctx, match)
			report.Actions = append(report.Actions, actions...)
			if err != nil {
				return err
			}
			// Scheduling decisions below must see the reset flags.
			match, err = s.loadMatch(ctx, matchID)
			if err != nil {
				return err
			}
		}

		actions, err := s.reconcileMatch(ctx, match)
		report.Actions = append(report.Actions, actions...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// UnscheduleMatchTasks revokes both automation tasks for one match and resets
// its schedule flags.
func (s *MatchService) UnscheduleMatchTasks(ctx context.Context, matchID int64) (*ReconcileReport, error) {
	report := &ReconcileReport{MatchID: matchID, Actions: []string{}}
	err := s.withTelemetry(ctx, "unschedule_match_tasks", matchID, func(ctx context.Context) error {
		match, err := s.loadMatch(ctx, matchID)
		if err != nil {
			return err
		}
		actions, err := s.revokeMatchTasks(ctx, match)
		report.Actions = append(report.Actions, actions...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *MatchService) loadMatch(ctx context.Context, matchID int64) (*matchtypes.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, matchdb.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to load match: %w", err)
	}
	return match, nil
}

// revokeMatchTasks cancels queue jobs, revokes rows, removes markers, and
// resets the schedule flags for one match. Cancellation is fire-and-forget: a
// worker that already picked the job up is not waited for.
func (s *MatchService) revokeMatchTasks(ctx context.Context, match *matchtypes.Match) ([]string, error) {
	actions := []string{}

	for _, kind := range taskKinds {
		task, err := s.taskRepo.FindActive(ctx, match.ID, kind)
		switch {
		case errors.Is(err, matchdb.ErrNotFound):
			// No row; still clear any leftover marker below.
		case err != nil:
			return actions, fmt.Errorf("failed to look up active %s task: %w", kind, err)
		default:
			if jobID, perr := strconv.ParseInt(task.QueueJobID, 10, 64); perr == nil {
				if err := s.queue.CancelJob(ctx, jobID); err != nil {
					s.logger.WarnContext(ctx, "Failed to cancel queue job during unschedule",
						attr.Int64("match_id", match.ID),
						attr.String("queue_job_id", task.QueueJobID),
						attr.Error(err))
				}
			}
			if err := s.taskRepo.MarkRevoked(ctx, task.ID); err != nil && !errors.Is(err, matchdb.ErrNotFound) {
				return actions, fmt.Errorf("failed to revoke %s task: %w", kind, err)
			}
			s.metrics.RecordReconcileAction(ctx, "revoke_task")
			actions = append(actions, fmt.Sprintf("Revoked %s task (queue job %s)", kind, task.QueueJobID))
		}

		err = s.markers.Delete(ctx, match.ID, kind)
		if err != nil && !errors.Is(err, markers.ErrNoMarker) {
			s.logger.WarnContext(ctx, "Failed to delete marker during unschedule",
				attr.Int64("match_id", match.ID),
				attr.String("task_kind", string(kind)),
				attr.Error(err))
		}
	}

	if err := s.matchRepo.ResetScheduleFlags(ctx, match.ID); err != nil {
		return actions, fmt.Errorf("failed to reset schedule flags: %w", err)
	}
	actions = append(actions, "Reset schedule flags")
	s.statusCache.invalidate(match.ID)
	return actions, nil
}
