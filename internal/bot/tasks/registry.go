package tasks

import (
	"context"

	"github.com/imfbot/reportbot/internal/config"
)

// ScheduledTaskFunc is the signature for all scheduled tasks. The context
// comes from the scheduler and must be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks initializes and returns a map of all scheduled tasks.
// The keys match the scheduler section of the configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		config.TaskDailyReport:      newDailyReportTask(deps),
		config.TaskRetentionCleanup: newRetentionCleanupTask(deps),
		config.TaskSQLMaintenance:   newSQLMaintenanceTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
