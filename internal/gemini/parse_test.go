package gemini

import (
	"errors"
	"testing"
)

const validPayload = `{
  "questions": [
    {"message_id": 100, "text": "Is the deploy done?", "category": "technical",
     "is_answered": true, "answer_message_id": 102, "response_time_minutes": 15.5},
    {"message_id": 101, "text": "Who signs the contract?", "category": "Business",
     "is_answered": false}
  ],
  "answers": [
    {"message_id": 102, "text": "Done an hour ago.", "answers_to_message_id": 100}
  ],
  "summary": {"total_questions": 2, "answered": 1, "unanswered": 1, "avg_response_time_minutes": 15.5}
}`

func TestParseAnalysisResultValid(t *testing.T) {
	t.Parallel()

	result, err := ParseAnalysisResult(validPayload)
	if err != nil {
		t.Fatalf("ParseAnalysisResult() error = %v", err)
	}
	if len(result.Questions) != 2 || len(result.Answers) != 1 {
		t.Fatalf("result = %+v", result)
	}
	// Category casing is normalized.
	if result.Questions[1].Category != CategoryBusiness {
		t.Errorf("category = %q, want %q", result.Questions[1].Category, CategoryBusiness)
	}
}

func TestParseAnalysisResultStripsCodeFences(t *testing.T) {
	t.Parallel()

	fenced := "```json\n" + validPayload + "\n```"
	result, err := ParseAnalysisResult(fenced)
	if err != nil {
		t.Fatalf("ParseAnalysisResult() error = %v", err)
	}
	if result.Summary.TotalQuestions != 2 {
		t.Errorf("total questions = %d, want 2", result.Summary.TotalQuestions)
	}
}

func TestParseAnalysisResultRejectsInvalidPayloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "empty payload",
			payload: "",
		},
		{
			name:    "not JSON",
			payload: "Sure! Here is the analysis you asked for.",
		},
		{
			name: "duplicate question ids",
			payload: `{"questions": [
				{"message_id": 1, "text": "a?", "category": "other", "is_answered": false},
				{"message_id": 1, "text": "b?", "category": "other", "is_answered": false}],
				"answers": [],
				"summary": {"total_questions": 2, "answered": 0, "unanswered": 2}}`,
		},
		{
			name: "unknown category",
			payload: `{"questions": [
				{"message_id": 1, "text": "a?", "category": "gossip", "is_answered": false}],
				"answers": [],
				"summary": {"total_questions": 1, "answered": 0, "unanswered": 1}}`,
		},
		{
			name: "unanswered question carries answer data",
			payload: `{"questions": [
				{"message_id": 1, "text": "a?", "category": "other", "is_answered": false, "response_time_minutes": 0}],
				"answers": [],
				"summary": {"total_questions": 1, "answered": 0, "unanswered": 1}}`,
		},
		{
			name: "answer references unknown question",
			payload: `{"questions": [
				{"message_id": 1, "text": "a?", "category": "other", "is_answered": false}],
				"answers": [{"message_id": 2, "text": "b", "answers_to_message_id": 99}],
				"summary": {"total_questions": 1, "answered": 0, "unanswered": 1}}`,
		},
		{
			name: "summary total mismatch",
			payload: `{"questions": [
				{"message_id": 1, "text": "a?", "category": "other", "is_answered": false}],
				"answers": [],
				"summary": {"total_questions": 5, "answered": 0, "unanswered": 5}}`,
		},
		{
			name: "answered counts inconsistent",
			payload: `{"questions": [
				{"message_id": 1, "text": "a?", "category": "other", "is_answered": false}],
				"answers": [],
				"summary": {"total_questions": 1, "answered": 1, "unanswered": 0}}`,
		},
		{
			name: "negative response time",
			payload: `{"questions": [
				{"message_id": 1, "text": "a?", "category": "other", "is_answered": true, "response_time_minutes": -5}],
				"answers": [],
				"summary": {"total_questions": 1, "answered": 1, "unanswered": 0}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseAnalysisResult(tt.payload)
			var malformed *MalformedResponseError
			if !errors.As(err, &malformed) {
				t.Errorf("ParseAnalysisResult() error = %v, want MalformedResponseError", err)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare payload", input: `{"a":1}`, expected: `{"a":1}`},
		{name: "fence with language", input: "```json\n{\"a\":1}\n```", expected: `{"a":1}`},
		{name: "fence without language", input: "```\n{\"a\":1}\n```", expected: `{"a":1}`},
		{name: "surrounding whitespace", input: "  \n```json\n{\"a\":1}\n```\n ", expected: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := stripCodeFences(tt.input); got != tt.expected {
				t.Errorf("stripCodeFences(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
