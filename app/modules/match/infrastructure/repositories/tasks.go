package matchdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	matchtypes "github.com/north-end-collective/matchday-bot/app/modules/match/domain/types"
	"github.com/uptrace/bun"
)

// TaskDBImpl implements TaskRepository on bun.
type TaskDBImpl struct {
	DB *bun.DB
}

var _ TaskRepository = (*TaskDBImpl)(nil)

func (db *TaskDBImpl) FindActive(ctx context.Context, matchID int64, kind matchtypes.TaskKind) (*matchtypes.ScheduledTask, error) {
	var t ScheduledTask
	err := db.DB.NewSelect().
		Model(&t).
		Where("st.match_id = ?", matchID).
		Where("st.kind = ?", kind).
		Where("st.state IN (?)", bun.In([]matchtypes.TaskState{matchtypes.TaskStateScheduled, matchtypes.TaskStateRunning})).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toDomainTask(&t), nil
}

// ClaimSlot inserts the non-terminal row for (matchID, kind). The partial
// unique index active_task_per_match_kind turns a concurrent duplicate into a
// no-op, so two racing reconciliation runs converge on a single row.
func (db *TaskDBImpl) ClaimSlot(ctx context.Context, matchID int64, kind matchtypes.TaskKind, scheduledTime time.Time) (*matchtypes.ScheduledTask, bool, error) {
	row := &ScheduledTask{
		MatchID:       matchID,
		Kind:          kind,
		ScheduledTime: scheduledTime,
		State:         matchtypes.TaskStateScheduled,
	}
	res, err := db.DB.NewInsert().
		Model(row).
		On("CONFLICT (match_id, kind) WHERE state IN ('SCHEDULED', 'RUNNING') DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if affected == 0 {
		// Lost the race (or the slot was already held); hand back the holder.
		existing, err := db.FindActive(ctx, matchID, kind)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return toDomainTask(row), true, nil
}

func (db *TaskDBImpl) BindQueueJob(ctx context.Context, id int64, queueJobID string) error {
	res, err := db.DB.NewUpdate().
		Model(&ScheduledTask{}).
		Set("queue_job_id = ?", queueJobID).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *TaskDBImpl) MarkRunning(ctx context.Context, id int64, queueJobID string) error {
	return db.setState(ctx, id, matchtypes.TaskStateRunning, queueJobID, "")
}

func (db *TaskDBImpl) MarkSuccess(ctx context.Context, id int64) error {
	return db.setState(ctx, id, matchtypes.TaskStateSuccess, "", "")
}

func (db *TaskDBImpl) MarkFailed(ctx context.Context, id int64, reason string) error {
	return db.setState(ctx, id, matchtypes.TaskStateFailed, "", reason)
}

func (db *TaskDBImpl) MarkRevoked(ctx context.Context, id int64) error {
	return db.setState(ctx, id, matchtypes.TaskStateRevoked, "", "")
}

func (db *TaskDBImpl) setState(ctx context.Context, id int64, state matchtypes.TaskState, queueJobID, lastError string) error {
	q := db.DB.NewUpdate().
		Model(&ScheduledTask{}).
		Set("state = ?", state).
		Set("updated_at = current_timestamp").
		Where("id = ?", id)
	if queueJobID != "" {
		q = q.Set("queue_job_id = ?", queueJobID)
	}
	if lastError != "" {
		q = q.Set("last_error = ?", lastError)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *TaskDBImpl) ListByMatch(ctx context.Context, matchID int64) ([]matchtypes.ScheduledTask, error) {
	var rows []ScheduledTask
	err := db.DB.NewSelect().
		Model(&rows).
		Where("st.match_id = ?", matchID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]matchtypes.ScheduledTask, 0, len(rows))
	for i := range rows {
		out = append(out, *toDomainTask(&rows[i]))
	}
	return out, nil
}

func (db *TaskDBImpl) ExpireOverdue(ctx context.Context, matchID int64, cutoff time.Time) ([]matchtypes.ScheduledTask, error) {
	var rows []ScheduledTask
	err := db.DB.NewUpdate().
		Model(&rows).
		Set("state = ?", matchtypes.TaskStateExpired).
		Set("updated_at = current_timestamp").
		Where("match_id = ?", matchID).
		Where("state = ?", matchtypes.TaskStateScheduled).
		Where("scheduled_time < ?", cutoff).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]matchtypes.ScheduledTask, 0, len(rows))
	for i := range rows {
		out = append(out, *toDomainTask(&rows[i]))
	}
	return out, nil
}

func (db *TaskDBImpl) CloseAllNonTerminal(ctx context.Context, state matchtypes.TaskState) (int64, error) {
	res, err := db.DB.NewUpdate().
		Model(&ScheduledTask{}).
		Set("state = ?", state).
		Set("updated_at = current_timestamp").
		Where("state IN (?)", bun.In([]matchtypes.TaskState{matchtypes.TaskStateScheduled, matchtypes.TaskStateRunning})).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
