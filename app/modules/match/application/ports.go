package matchservice

import (
	"context"
	"time"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	matchqueue "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/queue"
)

// TaskQueue is the queue surface the service depends on; implemented by the
// River-backed queue service.
type TaskQueue interface {
	ScheduleThreadCreate(ctx context.Context, matchID, taskRowID int64, eta time.Time) (int64, error)
	ScheduleLiveReportingStart(ctx context.Context, matchID, taskRowID int64, eta time.Time) (int64, error)
	CancelJob(ctx context.Context, jobID int64) error
	JobState(ctx context.Context, jobID int64) (matchtypes.QueueState, error)
	DrainMatchJobs(ctx context.Context) (int, error)
	ListMatchJobs(ctx context.Context) ([]matchqueue.JobInfo, error)
}

// MarkerStore is the schedule-marker surface the service depends on;
// implemented by the JetStream KV store.
type MarkerStore interface {
	Set(ctx context.Context, matchID int64, kind matchtypes.TaskKind, marker matchtypes.Marker) error
	// Get returns the marker for (matchID, kind), or markers.ErrNoMarker.
	Get(ctx context.Context, matchID int64, kind matchtypes.TaskKind) (*matchtypes.Marker, error)
	Delete(ctx context.Context, matchID int64, kind matchtypes.TaskKind) error
	List(ctx context.Context) (map[int64]map[matchtypes.TaskKind]matchtypes.Marker, error)
}
