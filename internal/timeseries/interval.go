package timeseries

import "time"

// Requested ranges (in minutes) at which server-side bucketing changes granularity
const (
	RawRangeLimit      = 360   // 6 hours
	FiveMinuteLimit    = 1440  // 24 hours
	FifteenMinuteLimit = 10080 // 7 days
)

// SelectInterval returns the bucket width to use for a query spanning the given number
// of minutes. Zero means rows are returned without bucketing.
func SelectInterval(minutes int) time.Duration {
	switch {
	case minutes <= RawRangeLimit:
		return 0
	case minutes <= FiveMinuteLimit:
		return 5 * time.Minute
	case minutes <= FifteenMinuteLimit:
		return 15 * time.Minute
	default:
		return 30 * time.Minute
	}
}
