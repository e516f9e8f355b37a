package matchdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/uptrace/bun"
)

// MatchDBImpl implements MatchRepository on bun.
type MatchDBImpl struct {
	DB *bun.DB
}

var _ MatchRepository = (*MatchDBImpl)(nil)

func (db *MatchDBImpl) GetByID(ctx context.Context, id int64) (*matchtypes.Match, error) {
	var m Match
	err := db.DB.NewSelect().Model(&m).Where("m.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toDomainMatch(&m), nil
}

func (db *MatchDBImpl) ListInWindow(ctx context.Context, from, to time.Time) ([]matchtypes.Match, error) {
	var rows []Match
	err := db.DB.NewSelect().
		Model(&rows).
		Where("m.date_time >= ?", from).
		Where("m.date_time <= ?", to).
		Order("date_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]matchtypes.Match, 0, len(rows))
	for i := range rows {
		out = append(out, *toDomainMatch(&rows[i]))
	}
	return out, nil
}

func (db *MatchDBImpl) MarkThreadScheduled(ctx context.Context, id int64, threadTime time.Time) error {
	_, err := db.DB.NewUpdate().
		Model(&Match{}).
		Set("thread_creation_scheduled = TRUE").
		Set("thread_creation_time = ?", threadTime).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (db *MatchDBImpl) MarkThreadCreated(ctx context.Context, id int64, discordThreadID string) error {
	_, err := db.DB.NewUpdate().
		Model(&Match{}).
		Set("thread_created = TRUE").
		Set("discord_thread_id = ?", discordThreadID).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (db *MatchDBImpl) SetReportingStatus(ctx context.Context, id int64, status matchtypes.ReportingStatus, started bool, taskID string) error {
	q := db.DB.NewUpdate().
		Model(&Match{}).
		Set("live_reporting_status = ?", status).
		Set("live_reporting_started = ?", started).
		Set("updated_at = current_timestamp").
		Where("id = ?", id)
	if taskID != "" {
		q = q.Set("live_reporting_task_id = ?", taskID)
	}
	if status == matchtypes.ReportingPreparing || status == matchtypes.ReportingRunning {
		q = q.Set("live_reporting_scheduled = TRUE")
	}
	_, err := q.Exec(ctx)
	return err
}

func (db *MatchDBImpl) ResetScheduleFlags(ctx context.Context, id int64) error {
	_, err := db.DB.NewUpdate().
		Model(&Match{}).
		Set("thread_creation_scheduled = FALSE").
		Set("thread_creation_time = NULL").
		Set("live_reporting_scheduled = FALSE").
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (db *MatchDBImpl) ResetAllScheduleFlags(ctx context.Context) (int64, error) {
	res, err := db.DB.NewUpdate().
		Model(&Match{}).
		Set("thread_creation_scheduled = FALSE").
		Set("thread_creation_time = NULL").
		Set("live_reporting_scheduled = FALSE").
		Set("live_reporting_started = FALSE").
		Set("live_reporting_status = ?", matchtypes.ReportingNotStarted).
		Set("live_reporting_task_id = NULL").
		Set("updated_at = current_timestamp").
		Where("thread_creation_scheduled OR live_reporting_scheduled OR live_reporting_started OR live_reporting_status != ?", matchtypes.ReportingNotStarted).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
