package migrations

import (
	"context"
	"fmt"

	matchdb "github.com/north-end-collective/matchday-bot/app/modules/match/infrastructure/repositories"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			fmt.Println("Creating matches table...")
			if _, err := db.NewCreateTable().Model((*matchdb.Match)(nil)).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create matches table: %w", err)
			}

			fmt.Println("Creating scheduled_tasks table...")
			if _, err := db.NewCreateTable().Model((*matchdb.ScheduledTask)(nil)).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create scheduled_tasks table: %w", err)
			}

			// One non-terminal row per (match, kind). ClaimSlot relies on this
			// index name in its ON CONFLICT clause.
			if _, err := db.ExecContext(ctx, `
				CREATE UNIQUE INDEX IF NOT EXISTS active_task_per_match_kind
				ON scheduled_tasks (match_id, kind)
				WHERE state IN ('SCHEDULED', 'RUNNING');
			`); err != nil {
				return fmt.Errorf("failed to create active_task_per_match_kind index: %w", err)
			}

			if _, err := db.ExecContext(ctx, `
				ALTER TABLE scheduled_tasks
				ADD CONSTRAINT scheduled_tasks_match_fk
				FOREIGN KEY (match_id) REFERENCES matches (id) ON DELETE CASCADE;
			`); err != nil {
				return fmt.Errorf("failed to add scheduled_tasks foreign key: %w", err)
			}

			fmt.Println("match tables created successfully!")
			return nil
		},
		func(ctx context.Context, db *bun.DB) error {
			fmt.Println("Dropping scheduled_tasks table...")
			if _, err := db.NewDropTable().Model((*matchdb.ScheduledTask)(nil)).IfExists().Cascade().Exec(ctx); err != nil {
				return err
			}
			fmt.Println("Dropping matches table...")
			if _, err := db.NewDropTable().Model((*matchdb.Match)(nil)).IfExists().Cascade().Exec(ctx); err != nil {
				return err
			}
			return nil
		},
	)
}
