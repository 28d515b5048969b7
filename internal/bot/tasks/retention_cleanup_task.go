package tasks

import (
	"context"
	"fmt"
	"time"
)

// newRetentionCleanupTask creates the scheduled task that deletes messages
// older than the retention window across all chats.
func newRetentionCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "retention_cleanup")

	return func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-deps.Config.Retention.Window)
		log.InfoContext(ctx, "Starting retention sweep", "cutoff", cutoff)
		startTime := time.Now()

		deleted, err := deps.Store.DeleteMessagesBefore(ctx, cutoff)
		duration := time.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "Retention sweep failed", "error", err, "duration", duration)
			return fmt.Errorf("retention sweep failed: %w", err)
		}

		log.InfoContext(ctx, "Retention sweep completed", "deleted", deleted, "duration", duration)
		return nil
	}
}
