package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/imfbot/reportbot/internal/delivery"
	"github.com/imfbot/reportbot/internal/report"
)

// Sender delivers report bodies and admin notifications through the Telegram
// API. It implements delivery.ReportSender and delivery.Notifier.
type Sender struct {
	bot         *bot.Bot
	log         *slog.Logger
	adminChatID int64
	maxLength   int
}

// NewSender creates a Telegram-backed sender. maxLength is the per-message
// character budget; longer reports are paginated on section boundaries.
func NewSender(b *bot.Bot, adminChatID int64, maxLength int, logger *slog.Logger) *Sender {
	return &Sender{
		bot:         b,
		log:         logger.With("component", "telegram_sender"),
		adminChatID: adminChatID,
		maxLength:   maxLength,
	}
}

// classifySendError maps a Telegram API error into the dispatcher's
// taxonomy. Forbidden (bot kicked from the chat) and bad request (broken
// markup) never succeed on retry; everything else is worth another attempt.
func classifySendError(err error) error {
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &delivery.RetryableError{
			Err:        err,
			RetryAfter: time.Duration(tooMany.RetryAfter) * time.Second,
		}
	}
	if errors.Is(err, bot.ErrorForbidden) || errors.Is(err, bot.ErrorBadRequest) {
		return err
	}
	return &delivery.RetryableError{Err: err}
}

// SendReport sends a Markdown report to a chat, splitting it into pages when
// it exceeds the per-message budget. A failure on any page fails the whole
// send; the dispatcher retries from the first page.
func (s *Sender) SendReport(ctx context.Context, chatID int64, body string) error {
	pages := report.Split(body, s.maxLength)
	for i, page := range pages {
		_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      page,
			ParseMode: models.ParseModeMarkdown,
		})
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to send report page",
				"chat_id", chatID, "page", i+1, "pages", len(pages), "error", err)
			return classifySendError(err)
		}
	}

	s.log.DebugContext(ctx, "Report sent", "chat_id", chatID, "pages", len(pages))
	return nil
}

// NotifyAdmin sends a plain-text notification to the configured admin chat.
// Escalation text is not Markdown; chat names and errors would break markup.
func (s *Sender) NotifyAdmin(ctx context.Context, text string) error {
	if s.adminChatID == 0 {
		return fmt.Errorf("admin chat is not configured")
	}

	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: s.adminChatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to notify admin chat %d: %w", s.adminChatID, err)
	}
	return nil
}
