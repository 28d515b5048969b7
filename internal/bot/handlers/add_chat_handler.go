package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/imfbot/reportbot/internal/database"
)

// NewAddChatHandler returns a handler for the /add_chat command. Run inside
// a group it whitelists that group; run with a numeric argument it
// whitelists the given chat ID.
func NewAddChatHandler(deps HandlerDeps) bot.HandlerFunc {
	return addChatHandler{deps}.Handle
}

type addChatHandler struct {
	deps HandlerDeps
}

// parseChatIDArg extracts an optional chat ID argument from a command
// message, falling back to the chat the command was issued in.
func parseChatIDArg(msg *models.Message) (int64, error) {
	fields := strings.Fields(msg.Text)
	if len(fields) < 2 {
		return msg.Chat.ID, nil
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat ID %q", fields[1])
	}
	return id, nil
}

func (h addChatHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "add_chat")
	if update.Message == nil {
		return
	}
	msg := update.Message

	chatID, err := parseChatIDArg(msg)
	if err != nil {
		reply(ctx, b, log, msg.Chat.ID, "Usage: /add_chat [chat_id]")
		return
	}

	chatName := msg.Chat.Title
	if chatID != msg.Chat.ID {
		chatName = ""
	}

	chat := &database.Chat{ChatID: chatID, ChatName: chatName, Enabled: true}
	if err := h.deps.Store.SaveChat(ctx, chat); err != nil {
		log.ErrorContext(ctx, "Failed to whitelist chat", "chat_id", chatID, "error", err)
		reply(ctx, b, log, msg.Chat.ID, "Failed to add chat, see logs.")
		return
	}

	log.InfoContext(ctx, "Chat whitelisted", "chat_id", chatID, "chat_name", chatName)
	reply(ctx, b, log, msg.Chat.ID, fmt.Sprintf("Chat %d is now monitored. Daily reports enabled.", chatID))
}
