package matchdb

import (
	"time"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/uptrace/bun"
)

// Match represents a single tracked fixture.
type Match struct {
	bun.BaseModel `bun:"table:matches,alias:m"`

	ID              int64     `bun:"id,pk,autoincrement"`
	MatchID         string    `bun:"match_id,notnull,unique"`
	Opponent        string    `bun:"opponent,notnull"`
	DateTime        time.Time `bun:"date_time,notnull"`
	Competition     string    `bun:"competition,nullzero"`
	Venue           string    `bun:"venue,nullzero"`
	IsHomeGame      bool      `bun:"is_home_game,notnull,default:false"`
	DiscordThreadID *string   `bun:"discord_thread_id,nullzero"`

	ThreadCreationScheduled bool                       `bun:"thread_creation_scheduled,notnull,default:false"`
	ThreadCreated           bool                       `bun:"thread_created,notnull,default:false"`
	ThreadCreationTime      *time.Time                 `bun:"thread_creation_time,nullzero"`
	LiveReportingScheduled  bool                       `bun:"live_reporting_scheduled,notnull,default:false"`
	LiveReportingStarted    bool                       `bun:"live_reporting_started,notnull,default:false"`
	LiveReportingStatus     matchtypes.ReportingStatus `bun:"live_reporting_status,notnull,default:'not_started'"`
	LiveReportingTaskID     string                     `bun:"live_reporting_task_id,nullzero"`

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// ScheduledTask is one queue job tied to a match. At most one non-terminal row
// may exist per (match_id, kind); a partial unique index enforces it.
type ScheduledTask struct {
	bun.BaseModel `bun:"table:scheduled_tasks,alias:st"`

	ID            int64                `bun:"id,pk,autoincrement"`
	MatchID       int64                `bun:"match_id,notnull"`
	Kind          matchtypes.TaskKind  `bun:"kind,notnull"`
	QueueJobID    string               `bun:"queue_job_id,nullzero"`
	ScheduledTime time.Time            `bun:"scheduled_time,notnull"`
	State         matchtypes.TaskState `bun:"state,notnull,default:'SCHEDULED'"`
	LastError     string               `bun:"last_error,nullzero"`

	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

func toDomainMatch(m *Match) *matchtypes.Match {
	if m == nil {
		return nil
	}
	return &matchtypes.Match{
		ID:                      m.ID,
		MatchID:                 m.MatchID,
		Opponent:                m.Opponent,
		DateTime:                m.DateTime,
		Competition:             m.Competition,
		Venue:                   m.Venue,
		IsHomeGame:              m.IsHomeGame,
		DiscordThreadID:         m.DiscordThreadID,
		ThreadCreationScheduled: m.ThreadCreationScheduled,
		ThreadCreated:           m.ThreadCreated,
		ThreadCreationTime:      m.ThreadCreationTime,
		LiveReportingScheduled:  m.LiveReportingScheduled,
		LiveReportingStarted:    m.LiveReportingStarted,
		LiveReportingStatus:     m.LiveReportingStatus,
		LiveReportingTaskID:     m.LiveReportingTaskID,
	}
}

func toDomainTask(t *ScheduledTask) *matchtypes.ScheduledTask {
	if t == nil {
		return nil
	}
	return &matchtypes.ScheduledTask{
		ID:            t.ID,
		MatchID:       t.MatchID,
		Kind:          t.Kind,
		QueueJobID:    t.QueueJobID,
		ScheduledTime: t.ScheduledTime,
		State:         t.State,
		LastError:     t.LastError,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}
