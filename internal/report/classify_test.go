package report_test

import (
	"testing"

	"github.com/imfbot/reportbot/internal/report"
)

func minutes(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    *float64
		expected report.Bucket
	}{
		{name: "nil is unanswered", input: nil, expected: report.BucketUnanswered},
		{name: "zero is fast", input: minutes(0), expected: report.BucketFast},
		{name: "just under an hour", input: minutes(59), expected: report.BucketFast},
		{name: "exactly one hour", input: minutes(60), expected: report.BucketMedium},
		{name: "just over an hour", input: minutes(61), expected: report.BucketMedium},
		{name: "exactly four hours", input: minutes(240), expected: report.BucketMedium},
		{name: "just over four hours", input: minutes(241), expected: report.BucketSlow},
		{name: "exactly one day", input: minutes(1440), expected: report.BucketSlow},
		{name: "just over one day", input: minutes(1441), expected: report.BucketVerySlow},
		{name: "several days", input: minutes(4321.5), expected: report.BucketVerySlow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := report.Classify(tt.input)
			if got != tt.expected {
				t.Errorf("Classify(%v) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestBucketString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bucket   report.Bucket
		expected string
	}{
		{report.BucketUnanswered, "unanswered"},
		{report.BucketFast, "fast"},
		{report.BucketMedium, "medium"},
		{report.BucketSlow, "slow"},
		{report.BucketVerySlow, "very_slow"},
	}

	for _, tt := range tests {
		if got := tt.bucket.String(); got != tt.expected {
			t.Errorf("Bucket(%d).String() = %q, want %q", tt.bucket, got, tt.expected)
		}
	}
}
