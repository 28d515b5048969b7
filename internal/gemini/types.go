package gemini

// Question categories the model is allowed to assign.
const (
	CategoryTechnical = "technical"
	CategoryBusiness  = "business"
	CategoryOther     = "other"
)

// QuestionAnalysis describes one detected question in a chat window.
// An unanswered question carries neither an answer message ID nor a response
// time; both are nil, never zero.
type QuestionAnalysis struct {
	MessageID           int64    `json:"message_id"`
	Text                string   `json:"text"`
	Category            string   `json:"category"`
	IsAnswered          bool     `json:"is_answered"`
	AnswerMessageID     *int64   `json:"answer_message_id,omitempty"`
	ResponseTimeMinutes *float64 `json:"response_time_minutes,omitempty"`
}

// AnswerAnalysis describes one detected answer and the question it resolves.
type AnswerAnalysis struct {
	MessageID          int64  `json:"message_id"`
	Text               string `json:"text"`
	AnswersToMessageID int64  `json:"answers_to_message_id"`
}

// AnalysisSummary holds the aggregate counts of one analysis call.
type AnalysisSummary struct {
	TotalQuestions         int      `json:"total_questions"`
	Answered               int      `json:"answered"`
	Unanswered             int      `json:"unanswered"`
	AvgResponseTimeMinutes *float64 `json:"avg_response_time_minutes,omitempty"`
}

// AnalysisResult is the validated output of one analysis call for one chat
// window. It is request-scoped; only the derived Report is persisted.
type AnalysisResult struct {
	Questions []QuestionAnalysis `json:"questions"`
	Answers   []AnswerAnalysis   `json:"answers"`
	Summary   AnalysisSummary    `json:"summary"`
}
