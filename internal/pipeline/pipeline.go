// Package pipeline orchestrates the daily report run: per-chat window reads,
// analysis, annotation, report generation, and handoff to delivery.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/imfbot/reportbot/internal/config"
	"github.com/imfbot/reportbot/internal/database"
	"github.com/imfbot/reportbot/internal/delivery"
	"github.com/imfbot/reportbot/internal/gemini"
	"github.com/imfbot/reportbot/internal/report"
)

// State is the pipeline's run state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCompletedWithFailures
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCompletedWithFailures:
		return "completed_with_failures"
	default:
		return "idle"
	}
}

// ErrAlreadyRunning is returned when Run is invoked while a run is in
// progress. The scheduler fires once a day, but a manual trigger could
// otherwise overlap a slow run.
var ErrAlreadyRunning = errors.New("report pipeline run already in progress")

// Deliverer dispatches generated reports. Implemented by delivery.Dispatcher.
type Deliverer interface {
	DeliverAll(ctx context.Context, items []delivery.Item) (*delivery.Summary, error)
}

// RunSummary describes one pipeline run.
type RunSummary struct {
	State             State
	ChatsProcessed    int
	EmptyWindows      int
	ZeroQuestionChats int
	ReportsGenerated  int
	AnalysisFailures  int
	FailedChatIDs     []int64
	Delivery          *delivery.Summary
}

// Pipeline runs the daily analysis and report generation across all enabled
// chats.
type Pipeline struct {
	store     database.Store
	analyzer  gemini.Client
	formatter *report.Formatter
	deliverer Deliverer
	notifier  delivery.Notifier
	log       *slog.Logger
	cfg       config.ReportConfig
	now       func() time.Time

	mu      sync.Mutex
	running bool
	state   State
}

// NewPipeline creates a report pipeline.
func NewPipeline(
	store database.Store,
	analyzer gemini.Client,
	formatter *report.Formatter,
	deliverer Deliverer,
	notifier delivery.Notifier,
	cfg config.ReportConfig,
	log *slog.Logger,
) *Pipeline {
	return &Pipeline{
		store:     store,
		analyzer:  analyzer,
		formatter: formatter,
		deliverer: deliverer,
		notifier:  notifier,
		log:       log.With("component", "report_pipeline"),
		cfg:       cfg,
		now:       time.Now,
		state:     StateIdle,
	}
}

// State returns the pipeline's current run state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}
	p.running = true
	p.state = StateRunning
	return nil
}

func (p *Pipeline) finish(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.state = state
}

// Run executes one full report cycle over all enabled chats. One chat's
// analysis failure never blocks the rest; an authentication failure aborts
// the whole run since every remaining chat would fail identically.
// Cancellation is honored between chats and propagated into per-chat calls.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}

	summary := &RunSummary{}
	var runErr error
	defer func() {
		state := StateCompleted
		if runErr != nil || summary.AnalysisFailures > 0 || (summary.Delivery != nil && summary.Delivery.Failed > 0) {
			state = StateCompletedWithFailures
		}
		summary.State = state
		p.finish(state)
		p.log.Info("Report pipeline run finished",
			"state", state.String(),
			"chats_processed", summary.ChatsProcessed,
			"empty_windows", summary.EmptyWindows,
			"zero_question_chats", summary.ZeroQuestionChats,
			"reports_generated", summary.ReportsGenerated,
			"analysis_failures", summary.AnalysisFailures)
	}()

	chats, err := p.store.GetEnabledChats(ctx)
	if err != nil {
		runErr = fmt.Errorf("failed to list enabled chats: %w", err)
		return summary, runErr
	}

	now := p.now().UTC()
	since := now.Add(-p.cfg.Window)
	reportDate := now.Truncate(24 * time.Hour)

	p.log.InfoContext(ctx, "Starting report pipeline run",
		"chats", len(chats), "window_start", since, "report_date", reportDate.Format("2006-01-02"))

	var items []delivery.Item
	for i := range chats {
		chat := &chats[i]
		if err := ctx.Err(); err != nil {
			runErr = err
			return summary, err
		}
		summary.ChatsProcessed++

		item, chatErr := p.processChat(ctx, chat, since, now, reportDate, summary)
		if chatErr != nil {
			if errors.Is(chatErr, gemini.ErrAuthentication) {
				p.escalateAuthFailure(ctx, chatErr)
				runErr = chatErr
				return summary, chatErr
			}
			if ctx.Err() != nil {
				runErr = ctx.Err()
				return summary, runErr
			}
			summary.AnalysisFailures++
			summary.FailedChatIDs = append(summary.FailedChatIDs, chat.ChatID)
			continue
		}
		if item != nil {
			items = append(items, *item)
		}
	}

	deliverySummary, err := p.deliverer.DeliverAll(ctx, items)
	summary.Delivery = deliverySummary
	if err != nil {
		runErr = fmt.Errorf("delivery interrupted: %w", err)
		return summary, runErr
	}

	return summary, nil
}

// processChat runs the analysis-to-report steps for one chat. A nil item
// with nil error means the chat was legitimately skipped.
func (p *Pipeline) processChat(
	ctx context.Context,
	chat *database.Chat,
	since, now time.Time,
	reportDate time.Time,
	summary *RunSummary,
) (*delivery.Item, error) {
	log := p.log.With("chat_id", chat.ChatID)

	messages, err := p.store.GetMessagesSince(ctx, chat.ChatID, since)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read message window", "error", err)
		return nil, err
	}
	if len(messages) == 0 {
		// No traffic, no analysis call, no report row.
		log.InfoContext(ctx, "Skipping chat, no messages in window")
		summary.EmptyWindows++
		return nil, nil
	}

	chatCtx, cancel := context.WithTimeout(ctx, p.cfg.ChatTimeout)
	result, err := p.analyzer.Analyze(chatCtx, messages)
	cancel()
	if err != nil {
		log.ErrorContext(ctx, "Analysis failed", "error", err)
		return nil, err
	}

	if result.Summary.TotalQuestions == 0 {
		// A quiet day produces no report row at all, so nothing is ever
		// delivered for it.
		log.InfoContext(ctx, "Skipping chat, no questions detected", "messages", len(messages))
		summary.ZeroQuestionChats++
		return nil, nil
	}

	p.annotateMessages(ctx, log, chat.ChatID, result)

	body := p.formatter.Format(chat.ChatName, now, result, messages)
	rpt := &database.Report{
		ChatID:          chat.ChatID,
		ReportDate:      reportDate,
		QuestionsCount:  result.Summary.TotalQuestions,
		AnsweredCount:   result.Summary.Answered,
		UnansweredCount: result.Summary.Unanswered,
		ReportContent:   body,
	}
	if result.Summary.AvgResponseTimeMinutes != nil {
		rpt.AvgResponseTimeMinutes.Valid = true
		rpt.AvgResponseTimeMinutes.Float64 = *result.Summary.AvgResponseTimeMinutes
	}

	if err := p.store.SaveReport(ctx, rpt); err != nil {
		log.ErrorContext(ctx, "Failed to persist report", "error", err)
		return nil, err
	}
	summary.ReportsGenerated++
	log.InfoContext(ctx, "Report generated",
		"questions", rpt.QuestionsCount, "answered", rpt.AnsweredCount, "unanswered", rpt.UnansweredCount)

	return &delivery.Item{Chat: *chat, Report: *rpt}, nil
}

// annotateMessages writes the analysis back onto the stored messages.
// Annotation failures are logged but never block report generation.
func (p *Pipeline) annotateMessages(ctx context.Context, log *slog.Logger, chatID int64, result *gemini.AnalysisResult) {
	questionIDs := make([]int64, 0, len(result.Questions))
	for _, q := range result.Questions {
		questionIDs = append(questionIDs, q.MessageID)
	}
	answers := make(map[int64]int64, len(result.Answers))
	for _, a := range result.Answers {
		answers[a.MessageID] = a.AnswersToMessageID
	}

	if err := p.store.AnnotateAnalysis(ctx, chatID, questionIDs, answers); err != nil {
		log.WarnContext(ctx, "Failed to annotate analyzed messages", "error", err)
	}
}

func (p *Pipeline) escalateAuthFailure(ctx context.Context, cause error) {
	text := fmt.Sprintf("🚨 Daily report run aborted: analysis provider rejected our credentials.\n%v", cause)
	if err := p.notifier.NotifyAdmin(ctx, text); err != nil {
		p.log.ErrorContext(ctx, "Failed to escalate authentication failure", "error", err)
	}
}
