package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/imfbot/reportbot/internal/config"
	"github.com/imfbot/reportbot/internal/database"
)

type fakeSender struct {
	// fail maps chat IDs to the error every send attempt returns.
	fail     map[int64]error
	attempts map[int64]int
}

func (f *fakeSender) SendReport(_ context.Context, chatID int64, _ string) error {
	if f.attempts == nil {
		f.attempts = make(map[int64]int)
	}
	f.attempts[chatID]++
	return f.fail[chatID]
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) NotifyAdmin(_ context.Context, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

type fakeStatusStore struct {
	sentReports []int64
	sentChats   []int64
}

func (f *fakeStatusStore) MarkReportSent(_ context.Context, reportID int64, _ time.Time) error {
	f.sentReports = append(f.sentReports, reportID)
	return nil
}

func (f *fakeStatusStore) UpdateChatLastReport(_ context.Context, chatID int64, _ time.Time) error {
	f.sentChats = append(f.sentChats, chatID)
	return nil
}

func testConfig() config.DeliveryConfig {
	return config.DeliveryConfig{
		PacingDelay:         5 * time.Second,
		MaxAttempts:         3,
		RetryDelay:          time.Second,
		MaxMessageLength:    4096,
		EscalationThreshold: 0.5,
	}
}

// newTestDispatcher wires a dispatcher whose sleeps are recorded instead of
// slept.
func newTestDispatcher(sender ReportSender, notifier Notifier, store statusStore, cfg config.DeliveryConfig) (*Dispatcher, *[]time.Duration) {
	var sleeps []time.Duration
	d := NewDispatcher(sender, notifier, store, cfg, slog.Default())
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		sleeps = append(sleeps, dur)
		return ctx.Err()
	}
	d.now = func() time.Time { return time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC) }
	return d, &sleeps
}

func item(chatID, reportID int64, questions int) Item {
	return Item{
		Chat:   database.Chat{ChatID: chatID},
		Report: database.Report{ID: reportID, ChatID: chatID, QuestionsCount: questions, ReportContent: "report"},
	}
}

func TestDeliverAllSkipsZeroQuestionReports(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	store := &fakeStatusStore{}
	d, _ := newTestDispatcher(sender, &fakeNotifier{}, store, testConfig())

	summary, err := d.DeliverAll(context.Background(), []Item{item(1, 10, 0)})
	if err != nil {
		t.Fatalf("DeliverAll() error = %v", err)
	}
	if summary.Skipped != 1 || summary.Sent != 0 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 1 skipped", summary)
	}
	if len(sender.attempts) != 0 {
		t.Error("sender was called for a zero-question report")
	}
	if len(store.sentReports) != 0 {
		t.Error("skipped report was marked sent")
	}
}

func TestDeliverAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{fail: map[int64]error{1: errors.New("chat deleted")}}
	store := &fakeStatusStore{}
	d, _ := newTestDispatcher(sender, &fakeNotifier{}, store, testConfig())

	summary, err := d.DeliverAll(context.Background(), []Item{item(1, 10, 2), item(2, 11, 3)})
	if err != nil {
		t.Fatalf("DeliverAll() error = %v", err)
	}
	if summary.Sent != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 1 sent 1 failed", summary)
	}
	if len(summary.FailedChatIDs) != 1 || summary.FailedChatIDs[0] != 1 {
		t.Errorf("FailedChatIDs = %v, want [1]", summary.FailedChatIDs)
	}
	if len(store.sentReports) != 1 || store.sentReports[0] != 11 {
		t.Errorf("sent reports = %v, want [11]", store.sentReports)
	}
}

func TestDeliverAllEscalation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failCount int
		wantEscal int
	}{
		{name: "six of ten failures escalate", failCount: 6, wantEscal: 1},
		{name: "four of ten failures do not", failCount: 4, wantEscal: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sender := &fakeSender{fail: map[int64]error{}}
			var items []Item
			for i := int64(1); i <= 10; i++ {
				items = append(items, item(i, 100+i, 1))
				if i <= int64(tt.failCount) {
					sender.fail[i] = errors.New("forbidden")
				}
			}

			notifier := &fakeNotifier{}
			d, _ := newTestDispatcher(sender, notifier, &fakeStatusStore{}, testConfig())

			summary, err := d.DeliverAll(context.Background(), items)
			if err != nil {
				t.Fatalf("DeliverAll() error = %v", err)
			}
			if summary.Failed != tt.failCount {
				t.Errorf("summary.Failed = %d, want %d", summary.Failed, tt.failCount)
			}
			if len(notifier.messages) != tt.wantEscal {
				t.Fatalf("escalations = %d, want %d", len(notifier.messages), tt.wantEscal)
			}
			if tt.wantEscal == 1 {
				want := fmt.Sprintf("failed for %d of 10 chats", tt.failCount)
				if !strings.Contains(notifier.messages[0], want) {
					t.Errorf("escalation text %q missing %q", notifier.messages[0], want)
				}
			}
		})
	}
}

func TestSendWithRetriesBoundedAndHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{fail: map[int64]error{
		1: &RetryableError{Err: errors.New("too many requests"), RetryAfter: 7 * time.Second},
	}}
	d, sleeps := newTestDispatcher(sender, &fakeNotifier{}, &fakeStatusStore{}, testConfig())

	summary, err := d.DeliverAll(context.Background(), []Item{item(1, 10, 1)})
	if err != nil {
		t.Fatalf("DeliverAll() error = %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("summary.Failed = %d, want 1", summary.Failed)
	}
	if sender.attempts[1] != 3 {
		t.Errorf("attempts = %d, want 3", sender.attempts[1])
	}
	for i, s := range *sleeps {
		if s != 7*time.Second {
			t.Errorf("sleep %d = %v, want rate-limit hint 7s", i, s)
		}
	}
}

func TestSendWithRetriesExponentialBackoff(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{fail: map[int64]error{
		1: &RetryableError{Err: errors.New("bad gateway")},
	}}
	d, sleeps := newTestDispatcher(sender, &fakeNotifier{}, &fakeStatusStore{}, testConfig())

	if _, err := d.DeliverAll(context.Background(), []Item{item(1, 10, 1)}); err != nil {
		t.Fatalf("DeliverAll() error = %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, (*sleeps)[i], want[i])
		}
	}
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{fail: map[int64]error{1: errors.New("forbidden")}}
	d, _ := newTestDispatcher(sender, &fakeNotifier{}, &fakeStatusStore{}, testConfig())

	if _, err := d.DeliverAll(context.Background(), []Item{item(1, 10, 1)}); err != nil {
		t.Fatalf("DeliverAll() error = %v", err)
	}
	if sender.attempts[1] != 1 {
		t.Errorf("attempts = %d, want 1", sender.attempts[1])
	}
}

func TestPacingBetweenChats(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{fail: map[int64]error{2: errors.New("forbidden")}}
	d, sleeps := newTestDispatcher(sender, &fakeNotifier{}, &fakeStatusStore{}, testConfig())

	items := []Item{item(1, 10, 1), item(2, 11, 1), item(3, 12, 1)}
	if _, err := d.DeliverAll(context.Background(), items); err != nil {
		t.Fatalf("DeliverAll() error = %v", err)
	}
	// Two inter-chat gaps; pacing applies even after the failed chat.
	want := []time.Duration{5 * time.Second, 5 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
}

func TestDeliverAllStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	sender := &fakeSender{}
	d, _ := newTestDispatcher(sender, &fakeNotifier{}, &fakeStatusStore{}, testConfig())
	d.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	items := []Item{item(1, 10, 1), item(2, 11, 1), item(3, 12, 1)}
	summary, err := d.DeliverAll(ctx, items)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("DeliverAll() error = %v, want context.Canceled", err)
	}
	if summary.Sent != 1 {
		t.Errorf("summary.Sent = %d, want 1 before cancellation", summary.Sent)
	}
	if sender.attempts[3] != 0 {
		t.Error("chat after cancellation was still attempted")
	}
}

