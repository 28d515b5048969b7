package report

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/imfbot/reportbot/internal/database"
	"github.com/imfbot/reportbot/internal/gemini"
)

// Formatter renders analysis results as Telegram Markdown documents.
type Formatter struct {
	// Tag is appended to the report header so reports are searchable
	// in chat history.
	Tag string
}

// categoryBadge maps a question category to its report emoji.
func categoryBadge(category string) string {
	switch category {
	case gemini.CategoryTechnical:
		return "🔧"
	case gemini.CategoryBusiness:
		return "💼"
	default:
		return "❓"
	}
}

// markdownEscaper escapes the characters Telegram's legacy Markdown parse
// mode treats as markup. Only user-provided text goes through it; the
// report's own structure relies on * and _ staying live.
var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// EscapeMarkdown escapes user text for embedding in a Markdown report.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// FormatDuration renders a duration in minutes as a compact "Xh Ym" string.
func FormatDuration(minutes float64) string {
	total := int(math.Round(minutes))
	if total < 0 {
		total = 0
	}
	h := total / 60
	m := total % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// writeQuestionLine writes one bulleted question with its original timestamp
// when the message is still in the window, without a trailing newline.
func writeQuestionLine(sb *strings.Builder, q gemini.QuestionAnalysis, timestamps map[int64]time.Time) {
	if ts, ok := timestamps[q.MessageID]; ok {
		fmt.Fprintf(sb, "• [%s] %s %s", ts.UTC().Format("15:04"), categoryBadge(q.Category), EscapeMarkdown(q.Text))
	} else {
		fmt.Fprintf(sb, "• %s %s", categoryBadge(q.Category), EscapeMarkdown(q.Text))
	}
}

// Format renders the daily report body for one chat. The messages slice is
// the analyzed window; it supplies the original timestamps shown next to the
// listed questions. Callers must not invoke Format for a zero-question
// result, since such reports are never created or sent.
func (f *Formatter) Format(chatName string, date time.Time, result *gemini.AnalysisResult, messages []database.Message) string {
	timestamps := make(map[int64]time.Time, len(messages))
	for i := range messages {
		timestamps[messages[i].MessageID] = messages[i].Timestamp
	}

	var counts [5]int
	var answered, unanswered []gemini.QuestionAnalysis
	for _, q := range result.Questions {
		if !q.IsAnswered {
			counts[BucketUnanswered]++
			unanswered = append(unanswered, q)
			continue
		}
		answered = append(answered, q)
		// An answered question with no recorded time is listed but stays
		// out of the latency breakdown; it has no latency to bucket.
		if q.ResponseTimeMinutes != nil {
			counts[Classify(q.ResponseTimeMinutes)]++
		}
	}

	s := result.Summary
	var sb strings.Builder

	fmt.Fprintf(&sb, "📊 *Daily Communication Report* %s\n", f.Tag)
	fmt.Fprintf(&sb, "📅 %s — %s\n\n", date.Format("2006-01-02"), EscapeMarkdown(chatName))

	sb.WriteString("*Summary*\n")
	fmt.Fprintf(&sb, "• Total Questions: %d\n", s.TotalQuestions)
	rate := 0
	if s.TotalQuestions > 0 {
		rate = int(math.Round(float64(s.Answered) / float64(s.TotalQuestions) * 100))
	}
	fmt.Fprintf(&sb, "• Answered: %d (%d%%)\n", s.Answered, rate)
	fmt.Fprintf(&sb, "• Unanswered: %d\n", s.Unanswered)
	if s.AvgResponseTimeMinutes != nil {
		fmt.Fprintf(&sb, "• Avg Response Time: %s\n", FormatDuration(*s.AvgResponseTimeMinutes))
	}
	sb.WriteString("\n")

	sb.WriteString("*Response Time Breakdown*\n")
	fmt.Fprintf(&sb, "⚡ Fast (under 1h): %d\n", counts[BucketFast])
	fmt.Fprintf(&sb, "🕐 Medium (1-4h): %d\n", counts[BucketMedium])
	fmt.Fprintf(&sb, "🐌 Slow (4-24h): %d\n", counts[BucketSlow])
	fmt.Fprintf(&sb, "🦥 Very Slow (over 24h): %d\n", counts[BucketVerySlow])

	if len(answered) > 0 {
		sb.WriteString("\n*Answered Questions*\n")
		for _, q := range answered {
			writeQuestionLine(&sb, q, timestamps)
			if q.ResponseTimeMinutes != nil {
				fmt.Fprintf(&sb, " (answered in %s)", FormatDuration(*q.ResponseTimeMinutes))
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n*Unanswered Questions*\n")
	if len(unanswered) == 0 {
		sb.WriteString("✨ All questions have been answered!\n")
	} else {
		for _, q := range unanswered {
			writeQuestionLine(&sb, q, timestamps)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n_Reaction tracking coming soon_")
	return sb.String()
}

// Summary is the set of counts recoverable from a rendered report body.
type Summary struct {
	TotalQuestions int
	Answered       int
	Unanswered     int
}

var (
	totalRe      = regexp.MustCompile(`• Total Questions: (\d+)`)
	answeredRe   = regexp.MustCompile(`• Answered: (\d+)`)
	unansweredRe = regexp.MustCompile(`• Unanswered: (\d+)`)
)

// ParseSummary recovers the headline counts from a rendered report body.
// It is the inverse of Format's summary block and exists so stored report
// content can be audited without re-running analysis.
func ParseSummary(body string) (Summary, error) {
	var s Summary
	for _, spec := range []struct {
		re   *regexp.Regexp
		dest *int
		name string
	}{
		{totalRe, &s.TotalQuestions, "total questions"},
		{answeredRe, &s.Answered, "answered"},
		{unansweredRe, &s.Unanswered, "unanswered"},
	} {
		m := spec.re.FindStringSubmatch(body)
		if m == nil {
			return Summary{}, fmt.Errorf("report body missing %s line", spec.name)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Summary{}, fmt.Errorf("report body has invalid %s count: %w", spec.name, err)
		}
		*spec.dest = n
	}
	return s, nil
}

// Split breaks a report body into pages no longer than max runes, preferring
// blank-line section boundaries, then line boundaries. A single line longer
// than max is hard-split.
func Split(body string, max int) []string {
	if max <= 0 || len([]rune(body)) <= max {
		return []string{body}
	}

	var pages []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			pages = append(pages, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, section := range strings.Split(body, "\n\n") {
		pieces := []string{section}
		joiner := "\n\n"
		if len([]rune(section)) > max {
			pieces = splitLong(section, max)
			joiner = "\n"
		}
		for i, piece := range pieces {
			pieceLen := len([]rune(piece))
			sep := ""
			if currentLen > 0 {
				sep = "\n\n"
				if i > 0 {
					sep = joiner
				}
			}
			if currentLen+len(sep)+pieceLen > max {
				flush()
				sep = ""
			}
			current.WriteString(sep)
			current.WriteString(piece)
			currentLen += len(sep) + pieceLen
		}
	}
	flush()
	return pages
}

// splitLong splits an oversized section on newlines, falling back to rune
// chunks for any single line that still exceeds max.
func splitLong(section string, max int) []string {
	var out []string
	for _, line := range strings.Split(section, "\n") {
		runes := []rune(line)
		for len(runes) > max {
			out = append(out, string(runes[:max]))
			runes = runes[max:]
		}
		out = append(out, string(runes))
	}
	return out
}
