package database_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/imfbot/reportbot/internal/database"
)

// newTestStore opens a fresh on-disk database with the real migrations
// applied. A file-backed database keeps the migration driver and the
// single-connection pool behaving exactly as in production.
func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, slog.Default())
}

func msg(chatID, messageID int64, ts time.Time) *database.Message {
	return &database.Message{
		ChatID:    chatID,
		MessageID: messageID,
		UserID:    42,
		UserName:  "partner",
		Text:      "hello",
		Timestamp: ts,
	}
}

func TestSaveMessageIdempotentAppend(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	if err := store.SaveMessage(ctx, msg(-100, 1, ts)); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	// Re-ingesting the same (chat_id, message_id) is rejected without
	// changing the stored window.
	err := store.SaveMessage(ctx, msg(-100, 1, ts.Add(time.Hour)))
	if !errors.Is(err, database.ErrDuplicateMessage) {
		t.Fatalf("SaveMessage() duplicate error = %v, want ErrDuplicateMessage", err)
	}

	got, err := store.GetMessagesSince(ctx, -100, ts.Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetMessagesSince() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("stored %d messages, want 1", len(got))
	}
	if !got[0].Timestamp.Equal(ts) {
		t.Errorf("duplicate overwrote timestamp: %v", got[0].Timestamp)
	}

	// The same message ID in a different chat is a distinct message.
	if err := store.SaveMessage(ctx, msg(-200, 1, ts)); err != nil {
		t.Errorf("SaveMessage() in second chat error = %v", err)
	}
}

func TestGetMessagesSinceOrderingAndBoundary(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	// Appended out of order; two messages share a timestamp.
	inserts := []struct {
		messageID int64
		ts        time.Time
	}{
		{5, base.Add(30 * time.Minute)},
		{2, base},
		{9, base.Add(-2 * time.Hour)},
		{3, base},
	}
	for _, in := range inserts {
		if err := store.SaveMessage(ctx, msg(-100, in.messageID, in.ts)); err != nil {
			t.Fatalf("SaveMessage(%d) error = %v", in.messageID, err)
		}
	}

	got, err := store.GetMessagesSince(ctx, -100, base)
	if err != nil {
		t.Fatalf("GetMessagesSince() error = %v", err)
	}

	// Message 9 is older than the window start; a message exactly at the
	// boundary is included. Ties are ordered by message_id.
	wantIDs := []int64{2, 3, 5}
	if len(got) != len(wantIDs) {
		t.Fatalf("got %d messages, want %d", len(got), len(wantIDs))
	}
	for i, want := range wantIDs {
		if got[i].MessageID != want {
			t.Errorf("message[%d].MessageID = %d, want %d", i, got[i].MessageID, want)
		}
	}
}

func TestDeleteMessagesBefore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	for i, ts := range []time.Time{base.Add(-72 * time.Hour), base.Add(-50 * time.Hour), base.Add(-time.Hour)} {
		if err := store.SaveMessage(ctx, msg(-100, int64(i+1), ts)); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	deleted, err := store.DeleteMessagesBefore(ctx, base.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("DeleteMessagesBefore() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	got, err := store.GetMessagesSince(ctx, -100, base.Add(-96*time.Hour))
	if err != nil {
		t.Fatalf("GetMessagesSince() error = %v", err)
	}
	if len(got) != 1 || got[0].MessageID != 3 {
		t.Errorf("remaining messages = %+v, want only message 3", got)
	}
}

func TestChatDirectory(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetChat(ctx, -100); !errors.Is(err, database.ErrChatNotFound) {
		t.Fatalf("GetChat() on empty directory error = %v, want ErrChatNotFound", err)
	}

	for _, c := range []*database.Chat{
		{ChatID: -200, ChatName: "Partner B", Enabled: true},
		{ChatID: -100, ChatName: "Partner A", Enabled: true},
	} {
		if err := store.SaveChat(ctx, c); err != nil {
			t.Fatalf("SaveChat(%d) error = %v", c.ChatID, err)
		}
	}

	// Upsert updates the name without creating a second row.
	if err := store.SaveChat(ctx, &database.Chat{ChatID: -100, ChatName: "Partner A (renamed)", Enabled: true}); err != nil {
		t.Fatalf("SaveChat() upsert error = %v", err)
	}

	chats, err := store.ListChats(ctx)
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	if len(chats) != 2 || chats[0].ChatID != -200 || chats[1].ChatID != -100 {
		t.Fatalf("ListChats() = %+v, want two chats ordered by chat_id", chats)
	}
	if chats[1].ChatName != "Partner A (renamed)" {
		t.Errorf("chat name = %q, want renamed", chats[1].ChatName)
	}

	if err := store.SetChatEnabled(ctx, -100, false); err != nil {
		t.Fatalf("SetChatEnabled() error = %v", err)
	}
	if err := store.SetChatEnabled(ctx, -999, false); !errors.Is(err, database.ErrChatNotFound) {
		t.Errorf("SetChatEnabled() on unknown chat error = %v, want ErrChatNotFound", err)
	}

	enabled, err := store.GetEnabledChats(ctx)
	if err != nil {
		t.Fatalf("GetEnabledChats() error = %v", err)
	}
	if len(enabled) != 1 || enabled[0].ChatID != -200 {
		t.Errorf("GetEnabledChats() = %+v, want only chat -200", enabled)
	}
}

func TestSaveReportReplacesSameDay(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	if err := store.SaveChat(ctx, &database.Chat{ChatID: -100, ChatName: "Partner A", Enabled: true}); err != nil {
		t.Fatalf("SaveChat() error = %v", err)
	}

	first := &database.Report{ChatID: -100, ReportDate: day, QuestionsCount: 2, AnsweredCount: 1, UnansweredCount: 1, ReportContent: "v1"}
	if err := store.SaveReport(ctx, first); err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}

	second := &database.Report{ChatID: -100, ReportDate: day, QuestionsCount: 3, AnsweredCount: 2, UnansweredCount: 1, ReportContent: "v2"}
	if err := store.SaveReport(ctx, second); err != nil {
		t.Fatalf("SaveReport() re-run error = %v", err)
	}

	reports, err := store.GetRecentReports(ctx, -100, 10)
	if err != nil {
		t.Fatalf("GetRecentReports() error = %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports for the day, want 1", len(reports))
	}
	if reports[0].ReportContent != "v2" || reports[0].QuestionsCount != 3 {
		t.Errorf("report = %+v, want the re-run to replace the first row", reports[0])
	}

	sentAt := day.Add(10 * time.Hour)
	if err := store.MarkReportSent(ctx, reports[0].ID, sentAt); err != nil {
		t.Fatalf("MarkReportSent() error = %v", err)
	}
	reports, err = store.GetRecentReports(ctx, -100, 10)
	if err != nil {
		t.Fatalf("GetRecentReports() error = %v", err)
	}
	if !reports[0].SentAt.Valid || !reports[0].SentAt.Time.Equal(sentAt) {
		t.Errorf("sent_at = %+v, want %v", reports[0].SentAt, sentAt)
	}
}

func TestAnnotateAnalysis(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 3; i++ {
		if err := store.SaveMessage(ctx, msg(-100, i, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	// Message 1 is a question answered by message 3; message 2 is neither.
	err := store.AnnotateAnalysis(ctx, -100, []int64{1}, map[int64]int64{3: 1})
	if err != nil {
		t.Fatalf("AnnotateAnalysis() error = %v", err)
	}

	got, err := store.GetMessagesSince(ctx, -100, base)
	if err != nil {
		t.Fatalf("GetMessagesSince() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if !got[0].IsQuestion || got[0].IsAnswer {
		t.Errorf("message 1 flags = %+v, want question", got[0])
	}
	if got[1].IsQuestion || got[1].IsAnswer {
		t.Errorf("message 2 flags = %+v, want untouched", got[1])
	}
	if !got[2].IsAnswer || !got[2].AnswersMessageID.Valid || got[2].AnswersMessageID.Int64 != 1 {
		t.Errorf("message 3 = %+v, want answer referencing message 1", got[2])
	}
}
