package matchservice

import (
	"context"
	"fmt"
	"strconv"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/north-end-collective/matchday-bot/internal/observability/attr"
)

// RevokeAll is the emergency stop. It enumerates every marker, cancels the
// queue jobs they point at, drains whatever pending match jobs remain,
// revokes every non-terminal task row, and resets all lifecycle flags. It is
// a blunt instrument: individual failures are collected, not fatal, and a job
// a worker already picked up may still run to completion.
func (s *MatchService) RevokeAll(ctx context.Context) (*RevokeAllReport, error) {
	report := &RevokeAllReport{}
	err := s.withTelemetry(ctx, "revoke_all", 0, func(ctx context.Context) error {
		byMatch, err := s.markers.List(ctx)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("failed to list markers: %v", err))
		}
		for matchID, byKind := range byMatch {
			for kind, marker := range byKind {
				if jobID, perr := strconv.ParseInt(marker.TaskID, 10, 64); perr == nil {
					if err := s.queue.CancelJob(ctx, jobID); err != nil {
						report.Errors = append(report.Errors, fmt.Sprintf("match %d %s: cancel job %d: %v", matchID, kind, jobID, err))
					} else {
						report.JobsCancelled++
					}
				}
				if err := s.markers.Delete(ctx, matchID, kind); err != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("match %d %s: delete marker: %v", matchID, kind, err))
					continue
				}
				report.MarkersRemoved++
			}
		}

		// Markers can desync from the queue, so drain independently.
		drained, err := s.queue.DrainMatchJobs(ctx)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("failed to drain match jobs: %v", err))
		}
		report.JobsCancelled += drained

		revoked, err := s.taskRepo.CloseAllNonTerminal(ctx, matchtypes.TaskStateRevoked)
		if err != nil {
			return fmt.Errorf("failed to revoke task rows: %w", err)
		}
		report.TasksRevoked = revoked

		reset, err := s.matchRepo.ResetAllScheduleFlags(ctx)
		if err != nil {
			return fmt.Errorf("failed to reset schedule flags: %w", err)
		}
		report.FlagsReset = reset

		s.statusCache.purge()

		s.logger.WarnContext(ctx, "Revoked all scheduled match tasks",
			attr.Int("markers_removed", report.MarkersRemoved),
			attr.Int("jobs_cancelled", report.JobsCancelled),
			attr.Int64("tasks_revoked", report.TasksRevoked),
			attr.Int64("flags_reset", report.FlagsReset),
			attr.Int("error_count", len(report.Errors)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Recover is the full reset: everything outstanding is revoked, then the
// lookahead window is rescheduled from scratch.
func (s *MatchService) Recover(ctx context.Context) (*RecoverReport, error) {
	report := &RecoverReport{}
	err := s.withTelemetry(ctx, "recover", 0, func(ctx context.Context) error {
		revoked, err := s.RevokeAll(ctx)
		if err != nil {
			return err
		}
		report.Revoked = *revoked

		rescheduled, err := s.EnsureWindowScheduled(ctx)
		if err != nil {
			return err
		}
		report.Rescheduled = *rescheduled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
