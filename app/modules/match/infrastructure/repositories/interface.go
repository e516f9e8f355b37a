package matchdb

import (
	"context"
	"errors"
	"time"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// MatchRepository is the persistence contract for fixture rows.
type MatchRepository interface {
	GetByID(ctx context.Context, id int64) (*matchtypes.Match, error)
	ListInWindow(ctx context.Context, from, to time.Time) ([]matchtypes.Match, error)
	MarkThreadScheduled(ctx context.Context, id int64, threadTime time.Time) error
	MarkThreadCreated(ctx context.Context, id int64, discordThreadID string) error
	SetReportingStatus(ctx context.Context, id int64, status matchtypes.ReportingStatus, started bool, taskID string) error
	ResetScheduleFlags(ctx context.Context, id int64) error
	ResetAllScheduleFlags(ctx context.Context) (int64, error)
}

// TaskRepository is the persistence contract for ScheduledTask rows.
type TaskRepository interface {
	// FindActive returns the single non-terminal row for (matchID, kind),
	// or ErrNotFound.
	FindActive(ctx context.Context, matchID int64, kind matchtypes.TaskKind) (*matchtypes.ScheduledTask, error)
	// ClaimSlot atomically creates the non-terminal row for (matchID, kind).
	// When another row already holds the slot, claimed is false and the
	// existing row is returned instead.
	ClaimSlot(ctx context.Context, matchID int64, kind matchtypes.TaskKind, scheduledTime time.Time) (task *matchtypes.ScheduledTask, claimed bool, err error)
	// BindQueueJob records the queue job backing a freshly claimed row.
	BindQueueJob(ctx context.Context, id int64, queueJobID string) error
	MarkRunning(ctx context.Context, id int64, queueJobID string) error
	MarkSuccess(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	MarkRevoked(ctx context.Context, id int64) error
	ListByMatch(ctx context.Context, matchID int64) ([]matchtypes.ScheduledTask, error)
	// ExpireOverdue forces SCHEDULED rows for the match scheduled before the
	// cutoff into EXPIRED, returning the rows it touched.
	ExpireOverdue(ctx context.Context, matchID int64, cutoff time.Time) ([]matchtypes.ScheduledTask, error)
	// CloseAllNonTerminal is the emergency-recovery sweep: every SCHEDULED or
	// RUNNING row across all matches is forced into the given terminal state.
	CloseAllNonTerminal(ctx context.Context, state matchtypes.TaskState) (int64, error)
}
