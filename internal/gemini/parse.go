package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripCodeFences removes a surrounding markdown code fence from a model
// response. The model is instructed to return bare JSON, but fenced output
// still shows up often enough that structural parsing must not trip on it.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx != -1 {
		// Drop the language hint line ("json").
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// ParseAnalysisResult parses and validates a raw analysis payload. The
// payload is untrusted input: any shape violating the AnalysisResult
// invariants is rejected with MalformedResponseError, never repaired.
func ParseAnalysisResult(raw string) (*AnalysisResult, error) {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return nil, &MalformedResponseError{Reason: "empty payload", Raw: raw}
	}

	var result AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: raw}
	}

	if err := validateAnalysisResult(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func validateAnalysisResult(result *AnalysisResult) error {
	questionIDs := make(map[int64]bool, len(result.Questions))
	answered := 0

	for i := range result.Questions {
		q := &result.Questions[i]
		if questionIDs[q.MessageID] {
			return &MalformedResponseError{
				Reason: fmt.Sprintf("duplicate question message_id %d", q.MessageID),
			}
		}
		questionIDs[q.MessageID] = true

		switch strings.ToLower(q.Category) {
		case CategoryTechnical, CategoryBusiness, CategoryOther:
			q.Category = strings.ToLower(q.Category)
		default:
			return &MalformedResponseError{
				Reason: fmt.Sprintf("question %d has unknown category %q", q.MessageID, q.Category),
			}
		}

		if q.IsAnswered {
			answered++
			if q.ResponseTimeMinutes != nil && *q.ResponseTimeMinutes < 0 {
				return &MalformedResponseError{
					Reason: fmt.Sprintf("question %d has negative response time", q.MessageID),
				}
			}
		} else {
			// An unanswered question has no answer reference and no response
			// time; a zero would be indistinguishable from an instant answer.
			if q.AnswerMessageID != nil || q.ResponseTimeMinutes != nil {
				return &MalformedResponseError{
					Reason: fmt.Sprintf("unanswered question %d carries answer data", q.MessageID),
				}
			}
		}
	}

	for _, a := range result.Answers {
		if !questionIDs[a.AnswersToMessageID] {
			return &MalformedResponseError{
				Reason: fmt.Sprintf("answer %d references unknown question %d", a.MessageID, a.AnswersToMessageID),
			}
		}
	}

	s := result.Summary
	if s.TotalQuestions != len(result.Questions) {
		return &MalformedResponseError{
			Reason: fmt.Sprintf("summary total_questions %d does not match %d questions", s.TotalQuestions, len(result.Questions)),
		}
	}
	if s.Answered != answered || s.Answered+s.Unanswered != s.TotalQuestions {
		return &MalformedResponseError{
			Reason: fmt.Sprintf("summary counts inconsistent (total=%d answered=%d unanswered=%d)",
				s.TotalQuestions, s.Answered, s.Unanswered),
		}
	}
	if s.AvgResponseTimeMinutes != nil && *s.AvgResponseTimeMinutes < 0 {
		return &MalformedResponseError{Reason: "summary average response time is negative"}
	}

	return nil
}
