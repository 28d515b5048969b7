package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const helpText = `Available commands:
/start - what this bot does
/help - this message
/get_chat_id - show the current chat's numeric ID

Admin commands:
/add_chat [chat_id] - monitor this chat (or the given chat ID)
/remove_chat [chat_id] - stop monitoring
/list_chats - show all chats in the directory`

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return helpHandler{deps}.Handle
}

type helpHandler struct {
	deps HandlerDeps
}

func (h helpHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "help")
	if update.Message == nil {
		return
	}
	reply(ctx, b, log, update.Message.Chat.ID, helpText)
}
