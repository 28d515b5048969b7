// Package tasks implements the bot's scheduled tasks: the daily report run,
// the message retention sweep, and database maintenance.
package tasks

import (
	"log/slog"

	"github.com/imfbot/reportbot/internal/config"
	"github.com/imfbot/reportbot/internal/database"
	"github.com/imfbot/reportbot/internal/pipeline"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Pipeline *pipeline.Pipeline
	Config   *config.Config
}
