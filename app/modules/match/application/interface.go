package matchservice

import (
	"context"
	"time"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	matchqueue "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/queue"
)

// Service is the match-task scheduling and reconciliation contract.
type Service interface {
	// ScheduleMatchTasks ensures both automation tasks exist for one match.
	// With force set, existing tasks are revoked and rescheduled from scratch.
	ScheduleMatchTasks(ctx context.Context, matchID int64, force bool) (*ReconcileReport, error)
	// UnscheduleMatchTasks revokes both automation tasks for one match and
	// resets its schedule flags.
	UnscheduleMatchTasks(ctx context.Context, matchID int64) (*ReconcileReport, error)
	// ResyncMatch compares expected task state against markers, queue jobs,
	// and lifecycle flags, and repairs drift best-effort.
	ResyncMatch(ctx context.Context, matchID int64) (*ReconcileReport, error)
	// GetMatchTaskStatus aggregates marker, queue, and flag state into the
	// dashboard view. Results may be up to the cache TTL stale.
	GetMatchTaskStatus(ctx context.Context, matchID int64) (*MatchTaskStatus, error)
	// EnsureWindowScheduled reconciles every match inside the lookahead
	// window. This is the periodic beat's entry point.
	EnsureWindowScheduled(ctx context.Context) (*WindowReport, error)
	// RevokeAll is the emergency stop: every marker is removed, every pending
	// queue job cancelled, every non-terminal row revoked, and all lifecycle
	// flags reset.
	RevokeAll(ctx context.Context) (*RevokeAllReport, error)
	// Recover is the full reset: RevokeAll followed by a fresh window pass.
	Recover(ctx context.Context) (*RecoverReport, error)
	// MonitorScheduledTasks lists every live queue job and marker.
	MonitorScheduledTasks(ctx context.Context) (*MonitorReport, error)
}

// ReconcileReport is the audit trail of one reconciliation pass over a match.
// An empty Actions list means nothing needed fixing.
type ReconcileReport struct {
	MatchID int64    `json:"match_id"`
	Actions []string `json:"actions"`
}

// TaskStatus is the normalized view of one task kind for a match.
type TaskStatus struct {
	Kind    matchtypes.TaskKind   `json:"kind"`
	State   matchtypes.QueueState `json:"state"`
	TaskID  string                `json:"task_id,omitempty"`
	ETA     *time.Time            `json:"eta,omitempty"`
	Summary string                `json:"summary"`
	Error   string                `json:"error,omitempty"`
}

// MatchTaskStatus is the aggregated dashboard view for one match.
type MatchTaskStatus struct {
	MatchID             int64                      `json:"match_id"`
	Opponent            string                     `json:"opponent"`
	KickoffTime         time.Time                  `json:"kickoff_time"`
	ThreadTask          TaskStatus                 `json:"thread_task"`
	ReportingTask       TaskStatus                 `json:"reporting_task"`
	ThreadCreated       bool                       `json:"thread_created"`
	LiveReportingStatus matchtypes.ReportingStatus `json:"live_reporting_status"`
	Issues              []string                   `json:"issues,omitempty"`
}

// WindowReport summarizes one pass over the lookahead window.
type WindowReport struct {
	MatchesChecked int      `json:"matches_checked"`
	Actions        []string `json:"actions"`
}

// RevokeAllReport summarizes the emergency stop.
type RevokeAllReport struct {
	MarkersRemoved int      `json:"markers_removed"`
	JobsCancelled  int      `json:"jobs_cancelled"`
	TasksRevoked   int64    `json:"tasks_revoked"`
	FlagsReset     int64    `json:"flags_reset"`
	Errors         []string `json:"errors,omitempty"`
}

// RecoverReport summarizes a full reset.
type RecoverReport struct {
	Revoked     RevokeAllReport `json:"revoked"`
	Rescheduled WindowReport    `json:"rescheduled"`
}

// MarkerInfo is one marker as shown by the monitoring endpoint.
type MarkerInfo struct {
	MatchID int64               `json:"match_id"`
	Kind    matchtypes.TaskKind `json:"kind"`
	TaskID  string              `json:"task_id"`
	ETA     time.Time           `json:"eta"`
}

// MonitorReport is the full queue-and-marker inventory.
type MonitorReport struct {
	Jobs    []matchqueue.JobInfo `json:"jobs"`
	Markers []MarkerInfo         `json:"markers"`
}
