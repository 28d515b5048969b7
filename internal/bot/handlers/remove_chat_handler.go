package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/imfbot/reportbot/internal/database"
)

// NewRemoveChatHandler returns a handler for the /remove_chat command. The
// chat stays in the directory but is disabled: its history remains until the
// retention sweep removes it, and no further messages or reports flow.
func NewRemoveChatHandler(deps HandlerDeps) bot.HandlerFunc {
	return removeChatHandler{deps}.Handle
}

type removeChatHandler struct {
	deps HandlerDeps
}

func (h removeChatHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "remove_chat")
	if update.Message == nil {
		return
	}
	msg := update.Message

	chatID, err := parseChatIDArg(msg)
	if err != nil {
		reply(ctx, b, log, msg.Chat.ID, "Usage: /remove_chat [chat_id]")
		return
	}

	if err := h.deps.Store.SetChatEnabled(ctx, chatID, false); err != nil {
		if errors.Is(err, database.ErrChatNotFound) {
			reply(ctx, b, log, msg.Chat.ID, fmt.Sprintf("Chat %d is not in the directory.", chatID))
			return
		}
		log.ErrorContext(ctx, "Failed to disable chat", "chat_id", chatID, "error", err)
		reply(ctx, b, log, msg.Chat.ID, "Failed to remove chat, see logs.")
		return
	}

	log.InfoContext(ctx, "Chat disabled", "chat_id", chatID)
	reply(ctx, b, log, msg.Chat.ID, fmt.Sprintf("Chat %d is no longer monitored.", chatID))
}
