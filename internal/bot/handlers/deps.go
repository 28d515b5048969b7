package handlers

import (
	"log/slog"

	"github.com/imfbot/reportbot/internal/config"
	"github.com/imfbot/reportbot/internal/database"
)

// HandlerDeps provides dependencies for Telegram command and message
// handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  database.Store

	// BotID and BotUsername identify the bot account itself so the
	// collector can ignore its own messages (reports must never feed the
	// next day's analysis).
	BotID       int64
	BotUsername string
}
