package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/imfbot/reportbot/internal/database"
)

// NewCollectorHandler returns the default update handler: it appends text
// messages from whitelisted, enabled chats to the rolling message store.
// It takes deps by pointer because BotID is only known after the bot
// instance is created, which happens after this handler is wired in.
func NewCollectorHandler(deps *HandlerDeps) bot.HandlerFunc {
	return collectorHandler{deps}.Handle
}

type collectorHandler struct {
	deps *HandlerDeps
}

func (h collectorHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}
	// The bot's own messages (delivered reports) must not enter the store.
	if msg.From.ID == h.deps.BotID {
		return
	}

	log := h.deps.Logger.With("handler", "collector", "chat_id", msg.Chat.ID)

	chat, err := h.deps.Store.GetChat(ctx, msg.Chat.ID)
	if err != nil {
		if !errors.Is(err, database.ErrChatNotFound) {
			log.ErrorContext(ctx, "Failed to look up chat", "error", err)
		}
		return
	}
	if !chat.Enabled {
		return
	}

	userName := msg.From.Username
	if userName == "" {
		userName = msg.From.FirstName
	}

	record := &database.Message{
		ChatID:    msg.Chat.ID,
		MessageID: int64(msg.ID),
		UserID:    msg.From.ID,
		UserName:  userName,
		Text:      msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0).UTC(),
	}

	if err := h.deps.Store.SaveMessage(ctx, record); err != nil {
		// Telegram redelivers updates after reconnects; a duplicate is a
		// normal no-op, not a failure.
		if errors.Is(err, database.ErrDuplicateMessage) {
			log.DebugContext(ctx, "Ignoring duplicate message", "message_id", msg.ID)
			return
		}
		log.ErrorContext(ctx, "Failed to save message", "message_id", msg.ID, "error", err)
		return
	}

	log.DebugContext(ctx, "Message stored", "message_id", msg.ID, "user_id", msg.From.ID)
}
