package matchqueue

// ThreadCreateJobArgs is the delayed job that fires the thread-creation
// command for a match. TaskRowID pins the job to its scheduled_tasks row.
type ThreadCreateJobArgs struct {
	MatchID   int64 `json:"match_id"`
	TaskRowID int64 `json:"task_row_id"`
}

// Kind returns the job type identifier for River.
func (ThreadCreateJobArgs) Kind() string { return "match_thread_create" }

// LiveReportingStartJobArgs is the delayed job that fires the live-reporting
// start command for a match.
type LiveReportingStartJobArgs struct {
	MatchID   int64 `json:"match_id"`
	TaskRowID int64 `json:"task_row_id"`
}

// Kind returns the job type identifier for River.
func (LiveReportingStartJobArgs) Kind() string { return "match_live_reporting_start" }

// ReconcileJobArgs is the periodic beat that re-runs window reconciliation.
type ReconcileJobArgs struct{}

// Kind returns the job type identifier for River.
func (ReconcileJobArgs) Kind() string { return "match_reconcile_window" }

// JobInfo describes one queue job for the monitoring endpoint.
type JobInfo struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	MatchID     int64  `json:"match_id"`
	State       string `json:"state"`
	ScheduledAt string `json:"scheduled_at"`
	CreatedAt   string `json:"created_at"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
}
