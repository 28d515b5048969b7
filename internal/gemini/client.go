// Package gemini implements the analysis client: it turns a chat's message
// window into a question/answer AnalysisResult using Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/imfbot/reportbot/internal/config"
	"github.com/imfbot/reportbot/internal/database"
)

// Client is the analysis boundary used by the report pipeline. Implementations
// must return one of the typed errors from errors.go on failure so the
// pipeline can distinguish fatal, retryable, and per-chat conditions.
type Client interface {
	Analyze(ctx context.Context, messages []database.Message) (*AnalysisResult, error)
}

type sdkClient struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
	maxRetries    int
	retryDelay    time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

var questionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"message_id":            {Type: genai.TypeInteger, Description: "Telegram message ID of the question."},
		"text":                  {Type: genai.TypeString, Description: "Question text."},
		"category":              {Type: genai.TypeString, Description: "One of: technical, business, other."},
		"is_answered":           {Type: genai.TypeBoolean, Description: "Whether the question was answered in the window."},
		"answer_message_id":     {Type: genai.TypeInteger, Description: "Message ID of the first substantive answer. Omit when unanswered."},
		"response_time_minutes": {Type: genai.TypeNumber, Description: "Minutes from question to answer. Omit when unanswered."},
	},
	Required: []string{"message_id", "text", "category", "is_answered"},
}

var answerSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"message_id":            {Type: genai.TypeInteger, Description: "Telegram message ID of the answer."},
		"text":                  {Type: genai.TypeString, Description: "Answer text."},
		"answers_to_message_id": {Type: genai.TypeInteger, Description: "Message ID of the question this answers."},
	},
	Required: []string{"message_id", "text", "answers_to_message_id"},
}

var analysisSchema = &genai.Schema{
	Type:        genai.TypeObject,
	Description: "Question/answer analysis of one chat's message window.",
	Properties: map[string]*genai.Schema{
		"questions": {Type: genai.TypeArray, Items: questionSchema},
		"answers":   {Type: genai.TypeArray, Items: answerSchema},
		"summary": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"total_questions":           {Type: genai.TypeInteger},
				"answered":                  {Type: genai.TypeInteger},
				"unanswered":                {Type: genai.TypeInteger},
				"avg_response_time_minutes": {Type: genai.TypeNumber},
			},
			Required: []string{"total_questions", "answered", "unanswered"},
		},
	},
	Required: []string{"questions", "answers", "summary"},
}

// NewClient creates a Gemini analysis client from configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature:       &cfg.Temperature,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: AnalysisSystemInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    analysisSchema,
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized", "model", cfg.Model)
	return &sdkClient{
		genaiClient:   gi,
		log:           logger,
		contentConfig: baseCfg,
		modelName:     cfg.Model,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		sleep:         sleepContext,
	}, nil
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

// formatMessageForPrompt renders one message line for the analysis prompt.
// The message ID is what the model references in its result, so it must be
// the platform message ID, not the internal row ID.
func formatMessageForPrompt(m *database.Message) string {
	user := m.UserName
	if user == "" {
		user = fmt.Sprintf("User %d", m.UserID)
	}
	return fmt.Sprintf("[%s] %s (ID: %d): %s",
		m.Timestamp.UTC().Format("2006-01-02 15:04:05"), user, m.MessageID, m.Text)
}

func buildAnalysisPrompt(messages []database.Message) string {
	var sb strings.Builder
	sb.WriteString("Messages:\n")
	for i := range messages {
		sb.WriteString(formatMessageForPrompt(&messages[i]))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// classifyAPIError maps an SDK error to the analysis error taxonomy.
// The returned bool reports whether the error is retryable.
func classifyAPIError(err error) (error, bool) {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return fmt.Errorf("%w: %s", ErrAuthentication, apiErr.Message), false
		case 429:
			// The SDK does not surface a Retry-After header; hint stays zero.
			return &RateLimitedError{Err: err}, true
		case 500, 502, 503, 504:
			return &TransientError{Err: err}, true
		default:
			return fmt.Errorf("gemini API call failed: %w", err), false
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}
	// Anything else is assumed to be a network-level problem.
	return &TransientError{Err: err}, true
}

func (c *sdkClient) generateWithRetries(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, c.contentConfig)
		if err == nil {
			return resp, nil
		}

		classified, retryable := classifyAPIError(err)
		lastErr = classified
		if !retryable || attempt == c.maxRetries {
			break
		}

		delay := c.retryDelay * time.Duration(1<<attempt)
		var rateErr *RateLimitedError
		if errors.As(classified, &rateErr) && rateErr.RetryAfter > 0 {
			delay = rateErr.RetryAfter
		}

		c.log.WarnContext(ctx, "Gemini API call failed, retrying",
			"attempt", attempt+1, "max_retries", c.maxRetries, "delay", delay, "error", err)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}
	return nil, lastErr
}

// Analyze runs the question/answer analysis over a chat's message window.
// The window must already be in ascending timestamp order; the prompt is
// order-sensitive.
func (c *sdkClient) Analyze(ctx context.Context, messages []database.Message) (*AnalysisResult, error) {
	if len(messages) == 0 {
		// The pipeline skips empty windows before calling us; return an empty
		// valid result rather than a spurious API call.
		return &AnalysisResult{Questions: []QuestionAnalysis{}, Answers: []AnswerAnalysis{}}, nil
	}

	c.log.DebugContext(ctx, "Analyzing message window", "message_count", len(messages))

	prompt := buildAnalysisPrompt(messages)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.generateWithRetries(ctx, contents)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini analysis call failed", "error", err)
		return nil, err
	}

	jsonText, err := c.extractTextFromResponse(ctx, resp)
	if err != nil {
		return nil, err
	}

	result, err := ParseAnalysisResult(jsonText)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini analysis response rejected", "error", err)
		return nil, err
	}

	c.log.InfoContext(ctx, "Analysis complete",
		"questions", result.Summary.TotalQuestions,
		"answered", result.Summary.Answered,
		"unanswered", result.Summary.Unanswered)
	return result, nil
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini analysis request blocked", "reason", reason)
		return "", &MalformedResponseError{Reason: "request blocked by safety filter: " + reason}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing content", "finish_reason", finishReason)
		return "", &MalformedResponseError{Reason: "empty response, finish reason: " + finishReason}
	}

	return resp.Text(), nil
}
