// Package delivery sends generated reports back to their chats: sequenced
// with pacing, bounded retries with backoff, per-chat failure isolation, and
// operator escalation when too many chats fail.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/imfbot/reportbot/internal/config"
	"github.com/imfbot/reportbot/internal/database"
)

// RetryableError marks a transport failure worth retrying. RetryAfter carries
// the platform's rate-limit hint when one was provided, zero otherwise.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string { return fmt.Sprintf("retryable send failure: %v", e.Err) }
func (e *RetryableError) Unwrap() error { return e.Err }

// ReportSender delivers one report body to a chat. Implementations return a
// *RetryableError for transient transport failures; any other error is
// treated as permanent for that chat.
type ReportSender interface {
	SendReport(ctx context.Context, chatID int64, body string) error
}

// Notifier delivers an out-of-band notification to the operator.
type Notifier interface {
	NotifyAdmin(ctx context.Context, text string) error
}

// statusStore is the slice of database.Store the dispatcher needs to record
// delivery outcomes.
type statusStore interface {
	MarkReportSent(ctx context.Context, reportID int64, sentAt time.Time) error
	UpdateChatLastReport(ctx context.Context, chatID int64, sentAt time.Time) error
}

// Item pairs a chat with its generated report for delivery.
type Item struct {
	Chat   database.Chat
	Report database.Report
}

// Summary describes the outcome of one delivery run.
type Summary struct {
	Total         int
	Sent          int
	Skipped       int
	Failed        int
	FailedChatIDs []int64
}

// Dispatcher sequences report delivery across chats.
type Dispatcher struct {
	sender   ReportSender
	notifier Notifier
	store    statusStore
	log      *slog.Logger
	cfg      config.DeliveryConfig
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewDispatcher creates a delivery dispatcher.
func NewDispatcher(sender ReportSender, notifier Notifier, store statusStore, cfg config.DeliveryConfig, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		notifier: notifier,
		store:    store,
		log:      log.With("component", "delivery"),
		cfg:      cfg,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DeliverAll sends each item's report to its chat in slice order. One chat's
// failure never blocks the rest; pacing applies between consecutive chats
// regardless of outcome. When more than the configured fraction of chats
// fail, exactly one escalation notification goes to the operator. The
// returned Summary is valid even when an error (cancellation) is returned.
func (d *Dispatcher) DeliverAll(ctx context.Context, items []Item) (*Summary, error) {
	summary := &Summary{Total: len(items)}

	for i, item := range items {
		if i > 0 && d.cfg.PacingDelay > 0 {
			if err := d.sleep(ctx, d.cfg.PacingDelay); err != nil {
				return summary, err
			}
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		log := d.log.With("chat_id", item.Chat.ChatID, "report_id", item.Report.ID)

		// A zero-question day produces no report row upstream, but delivery
		// still refuses to send one if it ever sees it.
		if item.Report.QuestionsCount == 0 {
			log.InfoContext(ctx, "Skipping delivery, report has no questions")
			summary.Skipped++
			continue
		}

		if err := d.sendWithRetries(ctx, log, item.Chat.ChatID, item.Report.ReportContent); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				summary.Failed++
				summary.FailedChatIDs = append(summary.FailedChatIDs, item.Chat.ChatID)
				return summary, ctxErr
			}
			log.ErrorContext(ctx, "Report delivery failed", "error", err)
			summary.Failed++
			summary.FailedChatIDs = append(summary.FailedChatIDs, item.Chat.ChatID)
			continue
		}

		sentAt := d.now().UTC()
		if err := d.store.MarkReportSent(ctx, item.Report.ID, sentAt); err != nil {
			log.ErrorContext(ctx, "Failed to mark report sent", "error", err)
		}
		if err := d.store.UpdateChatLastReport(ctx, item.Chat.ChatID, sentAt); err != nil {
			log.ErrorContext(ctx, "Failed to update chat last report time", "error", err)
		}
		log.InfoContext(ctx, "Report delivered")
		summary.Sent++
	}

	d.escalateIfNeeded(ctx, summary)
	return summary, nil
}

// sendWithRetries attempts one chat's delivery up to MaxAttempts times.
// A mid-report failure retries the whole send.
func (d *Dispatcher) sendWithRetries(ctx context.Context, log *slog.Logger, chatID int64, body string) error {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		lastErr = d.sender.SendReport(ctx, chatID, body)
		if lastErr == nil {
			return nil
		}

		var retryable *RetryableError
		if !errors.As(lastErr, &retryable) || attempt == d.cfg.MaxAttempts {
			return lastErr
		}

		delay := d.cfg.RetryDelay * time.Duration(1<<(attempt-1))
		if retryable.RetryAfter > 0 {
			delay = retryable.RetryAfter
		}
		log.WarnContext(ctx, "Report delivery failed, retrying",
			"attempt", attempt, "max_attempts", d.cfg.MaxAttempts, "delay", delay, "error", lastErr)
		if err := d.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// escalateIfNeeded notifies the operator once when the failure fraction
// exceeds the configured threshold.
func (d *Dispatcher) escalateIfNeeded(ctx context.Context, summary *Summary) {
	if summary.Total == 0 || summary.Failed == 0 {
		return
	}
	if float64(summary.Failed)/float64(summary.Total) <= d.cfg.EscalationThreshold {
		return
	}

	text := fmt.Sprintf("⚠️ Daily report delivery failed for %d of %d chats.\nFailed chat IDs: %v",
		summary.Failed, summary.Total, summary.FailedChatIDs)
	if err := d.notifier.NotifyAdmin(ctx, text); err != nil {
		d.log.ErrorContext(ctx, "Failed to send escalation notification", "error", err)
	} else {
		d.log.WarnContext(ctx, "Escalated delivery failures to admin",
			"failed", summary.Failed, "total", summary.Total)
	}
}
