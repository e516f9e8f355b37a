package matchservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/markers"
)

// Human-readable labels per task kind, as shown on the admin dashboard.
var kindLabels = map[matchtypes.TaskKind]string{
	matchtypes.TaskKindThreadCreation:     "Thread Creation",
	matchtypes.TaskKindLiveReportingStart: "Live Reporting",
}

// GetMatchTaskStatus aggregates marker, queue, and flag state into the
// dashboard view. A queue or marker-store outage degrades the affected task
// to state ERROR rather than failing the request.
func (s *MatchService) GetMatchTaskStatus(ctx context.Context, matchID int64) (*MatchTaskStatus, error) {
	var result *MatchTaskStatus
	err := s.withTelemetry(ctx, "get_match_task_status", matchID, func(ctx context.Context) error {
		if cached, ok := s.statusCache.get(matchID); ok {
			result = cached
			return nil
		}

		match, err := s.loadMatch(ctx, matchID)
		if err != nil {
			return err
		}

		status := &MatchTaskStatus{
			MatchID:             match.ID,
			Opponent:            match.Opponent,
			KickoffTime:         match.DateTime,
			ThreadTask:          s.taskStatusFor(ctx, match, matchtypes.TaskKindThreadCreation),
			ReportingTask:       s.taskStatusFor(ctx, match, matchtypes.TaskKindLiveReportingStart),
			ThreadCreated:       match.ThreadCreated,
			LiveReportingStatus: match.LiveReportingStatus,
			Issues:              flagInvariantViolations(match),
		}

		s.statusCache.set(matchID, status)
		result = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// taskStatusFor resolves one task kind: marker, then queue state, then a
// human-readable summary. Never returns an error; failures degrade in place.
func (s *MatchService) taskStatusFor(ctx context.Context, match *matchtypes.Match, kind matchtypes.TaskKind) TaskStatus {
	label := kindLabels[kind]
	status := TaskStatus{Kind: kind}

	marker, err := s.markers.Get(ctx, match.ID, kind)
	if errors.Is(err, markers.ErrNoMarker) {
		status.State = matchtypes.QueueNotFound
		status.Summary = label + ": Not scheduled"
		return status
	}
	if err != nil {
		status.State = matchtypes.QueueError
		status.Error = err.Error()
		status.Summary = label + ": Status unavailable"
		return status
	}

	status.TaskID = marker.TaskID
	if !marker.ETA.IsZero() {
		eta := marker.ETA
		status.ETA = &eta
	}

	jobID, perr := strconv.ParseInt(marker.TaskID, 10, 64)
	if perr != nil {
		status.State = matchtypes.QueueError
		status.Error = "unrecognized task id format"
		status.Summary = label + ": Status unavailable"
		return status
	}

	state, err := s.queue.JobState(ctx, jobID)
	if err != nil {
		status.State = matchtypes.QueueError
		status.Error = err.Error()
		status.Summary = label + ": Status unavailable"
		return status
	}

	status.State = state
	status.Summary = summarize(label, state, marker.ETA)
	return status
}

func summarize(label string, state matchtypes.QueueState, eta time.Time) string {
	switch state {
	case matchtypes.QueuePending:
		if !eta.IsZero() {
			return fmt.Sprintf("%s: Scheduled and waiting to execute (scheduled for %s)", label, eta.UTC().Format(summaryTimeLayout))
		}
		return label + ": Scheduled and waiting to execute"
	case matchtypes.QueueStarted:
		return label + ": Currently executing"
	case matchtypes.QueueRetry:
		return label + ": Failed, waiting to retry"
	case matchtypes.QueueSuccess:
		return label + ": Completed successfully"
	case matchtypes.QueueFailure:
		return label + ": Failed"
	case matchtypes.QueueRevoked:
		return label + ": Revoked"
	case matchtypes.QueueNotFound:
		return label + ": Task not found in queue"
	default:
		return label + ": Status unavailable"
	}
}

// MonitorScheduledTasks lists every live queue job and marker for the
// operations dashboard.
func (s *MatchService) MonitorScheduledTasks(ctx context.Context) (*MonitorReport, error) {
	report := &MonitorReport{Markers: []MarkerInfo{}}
	err := s.withTelemetry(ctx, "monitor_scheduled_tasks", 0, func(ctx context.Context) error {
		jobs, err := s.queue.ListMatchJobs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list match jobs: %w", err)
		}
		report.Jobs = jobs

		byMatch, err := s.markers.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list markers: %w", err)
		}
		for matchID, byKind := range byMatch {
			for kind, marker := range byKind {
				report.Markers = append(report.Markers, MarkerInfo{
					MatchID: matchID,
					Kind:    kind,
					TaskID:  marker.TaskID,
					ETA:     marker.ETA,
				})
			}
		}
		sort.Slice(report.Markers, func(i, j int) bool {
			if report.Markers[i].MatchID != report.Markers[j].MatchID {
				return report.Markers[i].MatchID < report.Markers[j].MatchID
			}
			return report.Markers[i].Kind < report.Markers[j].Kind
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
