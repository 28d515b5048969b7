// Package report turns an analysis result into the Markdown report that is
// delivered back to each chat: response-time bucketing, formatting, and
// splitting long reports into platform-sized pages.
package report

// Bucket is a response-latency class for an answered question, or Unanswered
// when no answer arrived inside the analysis window.
type Bucket int

const (
	BucketUnanswered Bucket = iota
	BucketFast              // under 1 hour
	BucketMedium            // 1 to 4 hours
	BucketSlow              // 4 to 24 hours
	BucketVerySlow          // over 24 hours
)

func (b Bucket) String() string {
	switch b {
	case BucketFast:
		return "fast"
	case BucketMedium:
		return "medium"
	case BucketSlow:
		return "slow"
	case BucketVerySlow:
		return "very_slow"
	default:
		return "unanswered"
	}
}

// Classify maps a response time in minutes to its latency bucket. A nil input
// means the question was never answered. Boundary values belong to the lower
// bucket: 240 minutes is still medium, 1440 minutes is still slow.
func Classify(responseTimeMinutes *float64) Bucket {
	if responseTimeMinutes == nil {
		return BucketUnanswered
	}

	t := *responseTimeMinutes
	switch {
	case t < 60:
		return BucketFast
	case t <= 240:
		return BucketMedium
	case t <= 1440:
		return BucketSlow
	default:
		return BucketVerySlow
	}
}
