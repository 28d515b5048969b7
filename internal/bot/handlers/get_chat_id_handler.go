package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewGetChatIDHandler returns a handler for the /get_chat_id command, a
// convenience for finding the numeric ID to pass to /add_chat.
func NewGetChatIDHandler(deps HandlerDeps) bot.HandlerFunc {
	return getChatIDHandler{deps}.Handle
}

type getChatIDHandler struct {
	deps HandlerDeps
}

func (h getChatIDHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "get_chat_id")
	if update.Message == nil {
		return
	}
	reply(ctx, b, log, update.Message.Chat.ID,
		fmt.Sprintf("This chat's ID is %d.", update.Message.Chat.ID))
}
