package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrDuplicateMessage is returned by SaveMessage when a message with the same
// (chat_id, message_id) pair already exists. Re-ingestion of the same Telegram
// message is expected during reconnects; callers treat this as a no-op.
var ErrDuplicateMessage = errors.New("duplicate message")

// ErrChatNotFound is returned by chat lookups when no row matches.
var ErrChatNotFound = errors.New("chat not found")

// Store defines the data access operations used by the collector, the admin
// commands, and the daily report pipeline. Methods accept context.Context for
// cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessage inserts a new message record, failing with
	// ErrDuplicateMessage if the (chat_id, message_id) pair already exists.
	SaveMessage(ctx context.Context, message *Message) error

	// GetMessagesSince returns all messages for a chat with send timestamp at
	// or after since, ordered by timestamp ascending, ties broken by
	// message_id ascending. The analysis prompt is order-sensitive, so this
	// ordering must be deterministic.
	GetMessagesSince(ctx context.Context, chatID int64, since time.Time) ([]Message, error)

	// DeleteMessagesBefore removes messages older than cutoff across all
	// chats and returns the number of rows deleted (retention sweep).
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// AnnotateAnalysis marks the given messages of a chat as questions and
	// answers in a single transaction. answers maps an answer message_id to
	// the question message_id it resolves.
	AnnotateAnalysis(ctx context.Context, chatID int64, questionIDs []int64, answers map[int64]int64) error

	// GetChat retrieves a chat by its Telegram chat ID.
	// Returns ErrChatNotFound if the chat is not whitelisted.
	GetChat(ctx context.Context, chatID int64) (*Chat, error)

	// SaveChat inserts a chat or updates its name and enabled flag if the
	// Telegram chat ID is already whitelisted.
	SaveChat(ctx context.Context, chat *Chat) error

	// ListChats returns every whitelisted chat regardless of enabled state,
	// ordered by Telegram chat ID.
	ListChats(ctx context.Context) ([]Chat, error)

	// GetEnabledChats returns the chats the pipeline processes, in the same
	// deterministic order as ListChats.
	GetEnabledChats(ctx context.Context) ([]Chat, error)

	// SetChatEnabled flips the enabled flag of a whitelisted chat.
	SetChatEnabled(ctx context.Context, chatID int64, enabled bool) error

	// UpdateChatLastReport records the timestamp of the last successfully
	// delivered report for a chat.
	UpdateChatLastReport(ctx context.Context, chatID int64, sentAt time.Time) error

	// SaveReport persists a generated report. A re-run for the same
	// (chat, report_date) replaces the earlier row.
	SaveReport(ctx context.Context, report *Report) error

	// MarkReportSent sets the sent_at timestamp of a report.
	MarkReportSent(ctx context.Context, reportID int64, sentAt time.Time) error

	// GetRecentReports returns the most recent reports for a chat, newest first.
	GetRecentReports(ctx context.Context, chatID int64, limit int) ([]Report, error)

	// RunSQLMaintenance performs database maintenance tasks (VACUUM).
	RunSQLMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx over the given connection pool.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. modernc.org/sqlite does not export a stable error type for this,
// so the constraint name in the message is the contract.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.ChatID == 0 {
		return fmt.Errorf("message must have a non-zero chat_id")
	}
	if message.MessageID == 0 {
		return fmt.Errorf("message must have a non-zero message_id")
	}
	if message.Timestamp.IsZero() {
		return fmt.Errorf("message must have a non-zero timestamp")
	}

	message.Timestamp = message.Timestamp.UTC()
	message.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO messages (chat_id, message_id, user_id, user_name, text, timestamp, reactions,
                              is_question, is_answer, answers_message_id, created_at)
        VALUES (:chat_id, :message_id, :user_id, :user_name, :text, :timestamp, :reactions,
                :is_question, :is_answer, :answers_message_id, :created_at);
    `

	result, err := s.db.NamedExecContext(ctx, query, message)
	if isUniqueViolation(err) {
		s.logger.DebugContext(ctx, "Duplicate message ignored",
			"chat_id", message.ChatID, "message_id", message.MessageID)
		return fmt.Errorf("message %d in chat %d: %w", message.MessageID, message.ChatID, ErrDuplicateMessage)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message",
			"chat_id", message.ChatID, "message_id", message.MessageID, "error", err)
		return fmt.Errorf("failed to save message (chat %d, message %d): %w", message.ChatID, message.MessageID, err)
	}

	if id, idErr := result.LastInsertId(); idErr == nil {
		message.ID = id
	}

	s.logger.DebugContext(ctx, "Message saved",
		"chat_id", message.ChatID, "message_id", message.MessageID)
	return nil
}

func (s *sqlxStore) GetMessagesSince(ctx context.Context, chatID int64, since time.Time) ([]Message, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var messages []Message
	query := `
        SELECT id, chat_id, message_id, user_id, user_name, text, timestamp, reactions,
               is_question, is_answer, answers_message_id, created_at
        FROM messages
        WHERE chat_id = ? AND timestamp >= ?
        ORDER BY timestamp ASC, message_id ASC;
    `

	err := s.db.SelectContext(ctx, &messages, query, chatID, since.UTC())
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context done while fetching message window",
			"chat_id", chatID, "error", err)
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching message window",
			"chat_id", chatID, "since", since, "error", err)
		return nil, fmt.Errorf("failed to get messages for chat %d: %w", chatID, err)
	}

	s.logger.DebugContext(ctx, "Fetched message window",
		"chat_id", chatID, "since", since, "count", len(messages))
	return messages, nil
}

func (s *sqlxStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting old messages", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to delete messages before %s: %w", cutoff, err)
	}

	count, _ := result.RowsAffected()
	s.logger.InfoContext(ctx, "Deleted old messages", "cutoff", cutoff, "count", count)
	return count, nil
}

func (s *sqlxStore) AnnotateAnalysis(ctx context.Context, chatID int64, questionIDs []int64, answers map[int64]int64) error {
	if len(questionIDs) == 0 && len(answers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for annotations", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	if len(questionIDs) > 0 {
		query, args, inErr := sqlx.In(
			`UPDATE messages SET is_question = 1 WHERE chat_id = ? AND message_id IN (?)`,
			chatID, questionIDs)
		if inErr != nil {
			return fmt.Errorf("failed to build question annotation query: %w", inErr)
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			s.logger.ErrorContext(ctx, "Error annotating questions", "chat_id", chatID, "error", err)
			return fmt.Errorf("failed to annotate questions for chat %d: %w", chatID, err)
		}
	}

	for answerID, questionID := range answers {
		_, err = tx.ExecContext(ctx,
			`UPDATE messages SET is_answer = 1, answers_message_id = ? WHERE chat_id = ? AND message_id = ?`,
			questionID, chatID, answerID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error annotating answer",
				"chat_id", chatID, "message_id", answerID, "error", err)
			return fmt.Errorf("failed to annotate answer %d for chat %d: %w", answerID, chatID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit annotation transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Annotated analyzed messages",
		"chat_id", chatID, "questions", len(questionIDs), "answers", len(answers))
	return nil
}

func (s *sqlxStore) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	var chat Chat
	query := `
        SELECT id, chat_id, chat_name, enabled, last_report_sent, created_at, updated_at
        FROM chats WHERE chat_id = ?;
    `

	err := s.db.GetContext(ctx, &chat, query, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("chat %d: %w", chatID, ErrChatNotFound)
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting chat", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get chat %d: %w", chatID, err)
	}

	return &chat, nil
}

func (s *sqlxStore) SaveChat(ctx context.Context, chat *Chat) error {
	if chat == nil {
		return fmt.Errorf("cannot save nil chat")
	}
	if chat.ChatID == 0 {
		return fmt.Errorf("chat must have a non-zero chat_id")
	}

	now := time.Now().UTC()
	chat.UpdatedAt = now
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}

	query := `
        INSERT INTO chats (chat_id, chat_name, enabled, last_report_sent, created_at, updated_at)
        VALUES (:chat_id, :chat_name, :enabled, :last_report_sent, :created_at, :updated_at)
        ON CONFLICT (chat_id) DO UPDATE SET
            chat_name = excluded.chat_name,
            enabled = excluded.enabled,
            updated_at = excluded.updated_at;
    `

	result, err := s.db.NamedExecContext(ctx, query, chat)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving chat", "chat_id", chat.ChatID, "error", err)
		return fmt.Errorf("failed to save chat %d: %w", chat.ChatID, err)
	}

	if id, idErr := result.LastInsertId(); idErr == nil && chat.ID == 0 {
		chat.ID = id
	}

	s.logger.InfoContext(ctx, "Chat saved", "chat_id", chat.ChatID, "name", chat.ChatName, "enabled", chat.Enabled)
	return nil
}

func (s *sqlxStore) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	query := `
        SELECT id, chat_id, chat_name, enabled, last_report_sent, created_at, updated_at
        FROM chats ORDER BY chat_id ASC;
    `
	if err := s.db.SelectContext(ctx, &chats, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing chats", "error", err)
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

func (s *sqlxStore) GetEnabledChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	query := `
        SELECT id, chat_id, chat_name, enabled, last_report_sent, created_at, updated_at
        FROM chats WHERE enabled = 1 ORDER BY chat_id ASC;
    `
	if err := s.db.SelectContext(ctx, &chats, query); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching enabled chats", "error", err)
		return nil, fmt.Errorf("failed to get enabled chats: %w", err)
	}

	s.logger.DebugContext(ctx, "Fetched enabled chats", "count", len(chats))
	return chats, nil
}

func (s *sqlxStore) SetChatEnabled(ctx context.Context, chatID int64, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE chats SET enabled = ?, updated_at = ? WHERE chat_id = ?`,
		enabled, time.Now().UTC(), chatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating chat enabled flag", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to update chat %d: %w", chatID, err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("chat %d: %w", chatID, ErrChatNotFound)
	}

	s.logger.InfoContext(ctx, "Chat enabled flag updated", "chat_id", chatID, "enabled", enabled)
	return nil
}

func (s *sqlxStore) UpdateChatLastReport(ctx context.Context, chatID int64, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET last_report_sent = ?, updated_at = ? WHERE chat_id = ?`,
		sentAt.UTC(), time.Now().UTC(), chatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating last report timestamp", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to update last report for chat %d: %w", chatID, err)
	}
	return nil
}

func (s *sqlxStore) SaveReport(ctx context.Context, report *Report) error {
	if report == nil {
		return fmt.Errorf("cannot save nil report")
	}
	if report.ChatID == 0 {
		return fmt.Errorf("report must reference a chat")
	}

	report.CreatedAt = time.Now().UTC()

	// A report row is written in one statement so that a cancelled run leaves
	// either the complete report or nothing. (chat_id, report_date) is unique;
	// a re-run for the same day replaces the earlier, unsent row.
	query := `
        INSERT INTO reports (chat_id, report_date, questions_count, answered_count, unanswered_count,
                             avg_response_time_minutes, report_content, sent_at, created_at)
        VALUES (:chat_id, :report_date, :questions_count, :answered_count, :unanswered_count,
                :avg_response_time_minutes, :report_content, :sent_at, :created_at)
        ON CONFLICT (chat_id, report_date) DO UPDATE SET
            questions_count = excluded.questions_count,
            answered_count = excluded.answered_count,
            unanswered_count = excluded.unanswered_count,
            avg_response_time_minutes = excluded.avg_response_time_minutes,
            report_content = excluded.report_content,
            created_at = excluded.created_at;
    `

	result, err := s.db.NamedExecContext(ctx, query, report)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving report",
			"chat_id", report.ChatID, "report_date", report.ReportDate, "error", err)
		return fmt.Errorf("failed to save report for chat %d: %w", report.ChatID, err)
	}

	if id, idErr := result.LastInsertId(); idErr == nil {
		report.ID = id
	}

	s.logger.DebugContext(ctx, "Report saved",
		"chat_id", report.ChatID, "report_date", report.ReportDate, "questions", report.QuestionsCount)
	return nil
}

func (s *sqlxStore) MarkReportSent(ctx context.Context, reportID int64, sentAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reports SET sent_at = ? WHERE id = ?`, sentAt.UTC(), reportID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error marking report sent", "report_id", reportID, "error", err)
		return fmt.Errorf("failed to mark report %d sent: %w", reportID, err)
	}

	if affected, _ := result.RowsAffected(); affected != 1 {
		s.logger.WarnContext(ctx, "Unexpected row count marking report sent",
			"report_id", reportID, "affected", affected)
	}
	return nil
}

func (s *sqlxStore) GetRecentReports(ctx context.Context, chatID int64, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 10
	}

	var reports []Report
	query := `
        SELECT id, chat_id, report_date, questions_count, answered_count, unanswered_count,
               avg_response_time_minutes, report_content, sent_at, created_at
        FROM reports
        WHERE chat_id = ?
        ORDER BY report_date DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &reports, query, chatID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching recent reports", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get recent reports for chat %d: %w", chatID, err)
	}
	return reports, nil
}

// RunSQLMaintenance executes VACUUM. SQLite requires it to run outside a
// transaction.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed")
	return nil
}
