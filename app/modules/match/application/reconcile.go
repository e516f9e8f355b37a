package matchservice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/markers"
	matchdb "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/repositories"
	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

// taskKinds in reconciliation order: the thread must exist before reporting.
var taskKinds = []matchtypes.TaskKind{
	matchtypes.TaskKindThreadCreation,
	matchtypes.TaskKindLiveReportingStart,
}

// reconcileMatch is one idempotent repair pass over a single match: expire
// abandoned rows, clear ghost markers, schedule whatever the current window
// calls for, and flag invariant violations. Every corrective action taken is
// appended to the returned audit list; an empty list means nothing drifted.
func (s *MatchService) reconcileMatch(ctx context.Context, match *matchtypes.Match) ([]string, error) {
	now := s.clock.NowUTC()
	actions := []string{}

	// Abandoned rows first: SCHEDULED past the expiry cutoff is never retried
	// automatically.
	expired, err := s.taskRepo.ExpireOverdue(ctx, match.ID, now.Add(-TaskExpiryCutoff))
	if err != nil {
		return actions, fmt.Errorf("failed to expire overdue tasks: %w", err)
	}
	for _, t := range expired {
		actions = append(actions, fmt.Sprintf("Marked overdue %s task as EXPIRED (was scheduled for %s)",
			t.Kind, t.ScheduledTime.UTC().Format(summaryTimeLayout)))
		s.metrics.RecordReconcileAction(ctx, "expire_task")
		if err := s.markers.Delete(ctx, match.ID, t.Kind); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete marker for expired task",
				attr.Int64("match_id", match.ID),
				attr.String("task_kind", string(t.Kind)),
				attr.Error(err))
		}
	}

	// Ghost repair before scheduling, so a cleared ghost can be replaced in
	// the same pass.
	for _, kind := range taskKinds {
		ghostActions := s.repairGhosts(ctx, match, kind)
		actions = append(actions, ghostActions...)
	}

	windowActions, err := s.applyWindow(ctx, match, now)
	actions = append(actions, windowActions...)
	if err != nil {
		return actions, err
	}

	actions = append(actions, flagInvariantViolations(match)...)
	return actions, nil
}

// applyWindow issues the scheduling actions the current wall-clock window
// calls for, relative to kickoff T:
//
//	TOO_EARLY     now < T - 48h          nothing to do
//	THREAD_WINDOW T - 48h <= now < T-5m  thread task outstanding or done
//	LIVE_WINDOW   T - 5m <= now < T+3h   reporting task outstanding or running
//	POST_MATCH    now >= T + 3h          nothing new is ever scheduled
func (s *MatchService) applyWindow(ctx context.Context, match *matchtypes.Match, now time.Time) ([]string, error) {
	actions := []string{}
	kickoff := match.DateTime

	if now.Before(kickoff.Add(-ThreadCreateLead)) || !now.Before(kickoff.Add(PostMatchGrace)) {
		return actions, nil
	}

	if !match.ThreadCreated {
		eta := laterOf(now, kickoff.Add(-ThreadCreateLead))
		action, err := s.ensureTask(ctx, match, matchtypes.TaskKindThreadCreation, eta)
		if action != "" {
			actions = append(actions, action)
		}
		if err != nil {
			return actions, err
		}
	}

	if match.ThreadCreated && reportingWanted(match.LiveReportingStatus) {
		eta := laterOf(now, kickoff.Add(-LiveReportingLead))
		action, err := s.ensureTask(ctx, match, matchtypes.TaskKindLiveReportingStart, eta)
		if action != "" {
			actions = append(actions, action)
		}
		if err != nil {
			return actions, err
		}
	}

	return actions, nil
}

// reportingWanted reports whether live reporting still needs to be scheduled
// for the given status. A stopped or completed match stays stopped.
func reportingWanted(status matchtypes.ReportingStatus) bool {
	switch status {
	case matchtypes.ReportingRunning, matchtypes.ReportingStopped, matchtypes.ReportingCompleted:
		return false
	}
	return true
}

// ensureTask schedules one task kind unless a non-terminal row already holds
// the slot. Returns the audit action taken, or "" when nothing was done.
func (s *MatchService) ensureTask(ctx context.Context, match *matchtypes.Match, kind matchtypes.TaskKind, eta time.Time) (string, error) {
	if _, err := s.taskRepo.FindActive(ctx, match.ID, kind); err == nil {
		return "", nil // already outstanding
	} else if !errors.Is(err, matchdb.ErrNotFound) {
		return "", fmt.Errorf("failed to look up active %s task: %w", kind, err)
	}

	task, claimed, err := s.taskRepo.ClaimSlot(ctx, match.ID, kind, eta)
	if err != nil {
		return "", fmt.Errorf("failed to claim %s slot: %w", kind, err)
	}
	if !claimed {
		// A concurrent pass got there first; its row is authoritative.
		return "", nil
	}

	var jobID int64
	switch kind {
	case matchtypes.TaskKindThreadCreation:
		jobID, err = s.queue.ScheduleThreadCreate(ctx, match.ID, task.ID, eta)
	case matchtypes.TaskKindLiveReportingStart:
		jobID, err = s.queue.ScheduleLiveReportingStart(ctx, match.ID, task.ID, eta)
	default:
		err = fmt.Errorf("unknown task kind %q", kind)
	}
	if err != nil {
		// Release the slot so the next pass can retry.
		if failErr := s.taskRepo.MarkFailed(ctx, task.ID, "enqueue failed: "+err.Error()); failErr != nil {
			s.logger.ErrorContext(ctx, "Failed to release task slot after enqueue failure",
				attr.Int64("match_id", match.ID),
				attr.String("task_kind", string(kind)),
				attr.Error(failErr))
		}
		return "", fmt.Errorf("failed to enqueue %s job: %w", kind, err)
	}

	taskID := strconv.FormatInt(jobID, 10)
	if err := s.taskRepo.BindQueueJob(ctx, task.ID, taskID); err != nil {
		s.logger.WarnContext(ctx, "Failed to bind queue job to task row",
			attr.Int64("match_id", match.ID),
			attr.Int64("task_row_id", task.ID),
			attr.Error(err))
	}

	// A crash between enqueue and marker write leaves a job without a marker.
	// That gap is accepted: the next reconcile pass sees the active row and
	// takes no duplicate action, and the status view degrades gracefully.
	if err := s.markers.Set(ctx, match.ID, kind, matchtypes.Marker{TaskID: taskID, ETA: eta}); err != nil {
		s.logger.WarnContext(ctx, "Failed to write schedule marker",
			attr.Int64("match_id", match.ID),
			attr.String("task_kind", string(kind)),
			attr.Error(err))
	}

	switch kind {
	case matchtypes.TaskKindThreadCreation:
		if err := s.matchRepo.MarkThreadScheduled(ctx, match.ID, eta); err != nil {
			return "", fmt.Errorf("failed to mark thread creation scheduled: %w", err)
		}
	case matchtypes.TaskKindLiveReportingStart:
		if err := s.matchRepo.SetReportingStatus(ctx, match.ID, matchtypes.ReportingPreparing, false, taskID); err != nil {
			return "", fmt.Errorf("failed to set reporting status: %w", err)
		}
		match.LiveReportingStatus = matchtypes.ReportingPreparing
	}

	s.metrics.RecordReconcileAction(ctx, "schedule_"+kind.MarkerSegment())
	s.statusCache.invalidate(match.ID)
	return fmt.Sprintf("Scheduled %s task for %s", kind, eta.UTC().Format(summaryTimeLayout)), nil
}

// repairGhosts clears markers whose queue job is gone or already finished,
// and fails rows whose backing job vanished. External-service failures here
// degrade to "leave it for the next pass" rather than aborting the run.
func (s *MatchService) repairGhosts(ctx context.Context, match *matchtypes.Match, kind matchtypes.TaskKind) []string {
	actions := []string{}

	marker, err := s.markers.Get(ctx, match.ID, kind)
	switch {
	case errors.Is(err, markers.ErrNoMarker):
		// No marker. If an active row claims a job that the queue no longer
		// knows, the row is a ghost too.
		task, err := s.taskRepo.FindActive(ctx, match.ID, kind)
		if err != nil || task.QueueJobID == "" {
			return actions
		}
		jobID, perr := strconv.ParseInt(task.QueueJobID, 10, 64)
		if perr != nil {
			return actions
		}
		state, err := s.queue.JobState(ctx, jobID)
		if err != nil || state != matchtypes.QueueNotFound {
			return actions
		}
		if err := s.taskRepo.MarkFailed(ctx, task.ID, "queue job no longer exists"); err != nil {
			s.logger.WarnContext(ctx, "Failed to fail ghost task row",
				attr.Int64("match_id", match.ID),
				attr.Error(err))
			return actions
		}
		s.metrics.RecordReconcileAction(ctx, "fail_ghost_task")
		return append(actions, fmt.Sprintf("Marked %s task as FAILED: queue job %s no longer exists", kind, task.QueueJobID))

	case err != nil:
		s.logger.WarnContext(ctx, "Marker store unavailable during reconcile",
			attr.Int64("match_id", match.ID),
			attr.String("task_kind", string(kind)),
			attr.Error(err))
		return actions
	}

	jobID, perr := strconv.ParseInt(marker.TaskID, 10, 64)
	if perr != nil {
		if err := s.markers.Delete(ctx, match.ID, kind); err == nil {
			s.metrics.RecordReconcileAction(ctx, "remove_ghost_marker")
			actions = append(actions, fmt.Sprintf("Removed unreadable %s marker (task id %q)", kind, marker.TaskID))
		}
		return actions
	}

	state, err := s.queue.JobState(ctx, jobID)
	if err != nil {
		// Queue unreachable; nothing safe to repair this pass.
		return actions
	}

	switch state {
	case matchtypes.QueueNotFound:
		if err := s.markers.Delete(ctx, match.ID, kind); err == nil {
			s.metrics.RecordReconcileAction(ctx, "remove_ghost_marker")
			actions = append(actions, fmt.Sprintf("Removed ghost %s marker: queue job %d no longer exists", kind, jobID))
		}
	case matchtypes.QueueSuccess, matchtypes.QueueFailure, matchtypes.QueueRevoked:
		// Worker-side cleanup missed the marker; the TTL would get it
		// eventually, but the dashboard reads better without it.
		if err := s.markers.Delete(ctx, match.ID, kind); err == nil {
			s.metrics.RecordReconcileAction(ctx, "remove_stale_marker")
			actions = append(actions, fmt.Sprintf("Removed stale %s marker: queue job %d already finished (%s)", kind, jobID, state))
		}
	}
	return actions
}

// flagInvariantViolations surfaces impossible flag combinations in the audit
// list. Violations are reported, never silently repaired.
func flagInvariantViolations(match *matchtypes.Match) []string {
	var actions []string
	if match.ThreadCreated && match.DiscordThreadID == nil {
		actions = append(actions, "Flagged invariant violation: thread_created is set but no Discord thread id is recorded")
	}
	if match.LiveReportingStarted {
		switch match.LiveReportingStatus {
		case matchtypes.ReportingRunning, matchtypes.ReportingStopped, matchtypes.ReportingCompleted:
		default:
			actions = append(actions, fmt.Sprintf("Flagged invariant violation: live_reporting_started is set but status is %q", match.LiveReportingStatus))
		}
	}
	return actions
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
