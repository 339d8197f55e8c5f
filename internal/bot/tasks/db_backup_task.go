package tasks

import (
	"context"
	"fmt"
	"time"
)

// newDBBackupTask creates the scheduled task that snapshots the state
// document into the backup directory even when nothing changed recently.
func newDBBackupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "db_backup")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled backup task...")
		startTime := time.Now()

		err := deps.Store.BackupNow(ctx)

		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Backup task failed", "error", err, "duration", duration)
			return fmt.Errorf("state backup failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled backup task completed successfully", "duration", duration)
		return nil
	}
}
