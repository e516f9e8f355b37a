package matchtypes

import "time"

// TaskKind identifies the two automation jobs tracked per match.
type TaskKind string

const (
	TaskKindThreadCreation     TaskKind = "THREAD_CREATION"
	TaskKindLiveReportingStart TaskKind = "LIVE_REPORTING_START"
)

// MarkerSegment returns the short form used in marker-store keys.
func (k TaskKind) MarkerSegment() string {
	switch k {
	case TaskKindThreadCreation:
		return "thread"
	case TaskKindLiveReportingStart:
		return "reporting"
	default:
		return "unknown"
	}
}

// KindFromMarkerSegment is the inverse of MarkerSegment.
func KindFromMarkerSegment(segment string) (TaskKind, bool) {
	switch segment {
	case "thread":
		return TaskKindThreadCreation, true
	case "reporting":
		return TaskKindLiveReportingStart, true
	default:
		return "", false
	}
}

// TaskState is the lifecycle state of a ScheduledTask row.
type TaskState string

const (
	TaskStateScheduled TaskState = "SCHEDULED"
	TaskStateRunning   TaskState = "RUNNING"
	TaskStateSuccess   TaskState = "SUCCESS"
	TaskStateFailed    TaskState = "FAILED"
	TaskStateExpired   TaskState = "EXPIRED"
	TaskStateRevoked   TaskState = "REVOKED"
)

// Terminal reports whether the state can no longer change.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateSuccess, TaskStateFailed, TaskStateExpired, TaskStateRevoked:
		return true
	}
	return false
}

// ReportingStatus is the live-reporting lifecycle of a match.
type ReportingStatus string

const (
	ReportingNotStarted ReportingStatus = "not_started"
	ReportingPreparing  ReportingStatus = "preparing"
	ReportingRunning    ReportingStatus = "running"
	ReportingStopped    ReportingStatus = "stopped"
	ReportingCompleted  ReportingStatus = "completed"
)

// QueueState is the normalized state of a queue job, matching the states the
// admin dashboard understands. ERROR means the queue itself was unreachable.
type QueueState string

const (
	QueuePending  QueueState = "PENDING"
	QueueStarted  QueueState = "STARTED"
	QueueRetry    QueueState = "RETRY"
	QueueSuccess  QueueState = "SUCCESS"
	QueueFailure  QueueState = "FAILURE"
	QueueRevoked  QueueState = "REVOKED"
	QueueNotFound QueueState = "NOT_FOUND"
	QueueError    QueueState = "ERROR"
)

// Match is one real-world fixture tracked for Discord automation.
type Match struct {
	ID              int64
	MatchID         string // external fixture-feed identifier
	Opponent        string
	DateTime        time.Time // kickoff, always UTC
	Competition     string
	Venue           string
	IsHomeGame      bool
	DiscordThreadID *string

	// Lifecycle flags, owned by the scheduler and its workers.
	ThreadCreationScheduled bool
	ThreadCreated           bool
	ThreadCreationTime      *time.Time
	LiveReportingScheduled  bool
	LiveReportingStarted    bool
	LiveReportingStatus     ReportingStatus
	LiveReportingTaskID     string
}

// ScheduledTask is one outstanding or historical queue job tied to a match.
type ScheduledTask struct {
	ID            int64
	MatchID       int64
	Kind          TaskKind
	QueueJobID    string
	ScheduledTime time.Time
	State         TaskState
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Marker is the typed form of a marker-store value. Legacy raw-string values
// are normalized into this shape at the store boundary.
type Marker struct {
	TaskID string    `json:"task_id"`
	ETA    time.Time `json:"eta"`
}
