package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewListChatsHandler returns a handler for the /list_chats command.
func NewListChatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return listChatsHandler{deps}.Handle
}

type listChatsHandler struct {
	deps HandlerDeps
}

func (h listChatsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "list_chats")
	if update.Message == nil {
		return
	}

	chats, err := h.deps.Store.ListChats(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list chats", "error", err)
		reply(ctx, b, log, update.Message.Chat.ID, "Failed to list chats, see logs.")
		return
	}
	if len(chats) == 0 {
		reply(ctx, b, log, update.Message.Chat.ID, "No chats are in the directory yet. Use /add_chat inside a group.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Monitored chats:\n")
	for _, c := range chats {
		state := "enabled"
		if !c.Enabled {
			state = "disabled"
		}
		lastReport := "never"
		if c.LastReportSent.Valid {
			lastReport = c.LastReportSent.Time.UTC().Format("2006-01-02 15:04")
		}
		name := c.ChatName
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&sb, "• %d %s — %s, last report: %s\n", c.ChatID, name, state, lastReport)
	}

	reply(ctx, b, log, update.Message.Chat.ID, sb.String())
}
