package tasks

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// newDailyReportTask creates the scheduled task that runs the report
// pipeline. A random jitter before the run spreads deployments out so they
// do not all hit the analysis provider at the same minute.
func newDailyReportTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "daily_report")

	return func(ctx context.Context) error {
		if jitter := deps.Config.Scheduler.ReportJitter; jitter > 0 {
			delay := time.Duration(rand.Int63n(int64(jitter)))
			log.InfoContext(ctx, "Delaying daily report run", "jitter", delay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		log.InfoContext(ctx, "Starting daily report run")
		startTime := time.Now()

		summary, err := deps.Pipeline.Run(ctx)
		duration := time.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "Daily report run failed", "error", err, "duration", duration)
			return fmt.Errorf("daily report run failed: %w", err)
		}

		log.InfoContext(ctx, "Daily report run completed",
			"state", summary.State.String(),
			"reports_generated", summary.ReportsGenerated,
			"analysis_failures", summary.AnalysisFailures,
			"duration", duration)
		return nil
	}
}
