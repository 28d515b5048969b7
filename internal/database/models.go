package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReactionCounts maps a reaction emoji to the number of times it was applied.
// Stored as a JSON text column; an empty map is stored as NULL.
type ReactionCounts map[string]int

// Value implements driver.Valuer.
func (r ReactionCounts) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reactions: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (r *ReactionCounts) Scan(src any) error {
	if src == nil {
		*r = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ReactionCounts", src)
	}
	return json.Unmarshal(data, r)
}

// Message is one inbound message collected from a monitored group chat.
// Timestamps are stored in UTC. The (chat_id, message_id) pair is unique;
// re-ingesting the same Telegram message fails with ErrDuplicateMessage.
// The analysis annotations (IsQuestion, IsAnswer, AnswersMessageID) are set
// in place by the report pipeline after a successful analysis run.
type Message struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	ChatID    int64          `db:"chat_id"`
	MessageID int64          `db:"message_id"`
	UserID    int64          `db:"user_id"`
	UserName  string         `db:"user_name"`
	Text      string         `db:"text"`
	Timestamp time.Time      `db:"timestamp"`
	Reactions ReactionCounts `db:"reactions"`

	IsQuestion       bool          `db:"is_question"`
	IsAnswer         bool          `db:"is_answer"`
	AnswersMessageID sql.NullInt64 `db:"answers_message_id"`
}

// Chat is one whitelisted conversation. Only chats with Enabled set are
// processed by the daily pipeline; LastReportSent is the single field the
// pipeline itself mutates.
type Chat struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	ChatID         int64        `db:"chat_id"`
	ChatName       string       `db:"chat_name"`
	Enabled        bool         `db:"enabled"`
	LastReportSent sql.NullTime `db:"last_report_sent"`
}

// Report is the durable, delivery-ready artifact for one chat on one date.
// SentAt stays NULL until the dispatcher confirms delivery.
type Report struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	ChatID                 int64           `db:"chat_id"`
	ReportDate             time.Time       `db:"report_date"`
	QuestionsCount         int             `db:"questions_count"`
	AnsweredCount          int             `db:"answered_count"`
	UnansweredCount        int             `db:"unanswered_count"`
	AvgResponseTimeMinutes sql.NullFloat64 `db:"avg_response_time_minutes"`
	ReportContent          string          `db:"report_content"`
	SentAt                 sql.NullTime    `db:"sent_at"`
}
