package uptime

import "time"

const (
	// Insufficient is reported as the availability of a window whose data does not
	// reach back far enough to cover it.
	Insufficient = -1.0

	// CoverageTolerance is how much later than the window start the earliest sample may be
	// while the window still counts as covered.
	CoverageTolerance = 120 * time.Second

	// coverageThreshold is the longest window that is trusted without a coverage check.
	coverageThreshold = 24 * time.Hour
)

// Window is a named lookback duration
type Window struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// RequiresCoverage reports whether the window must be fully covered by data before
// its availability is reported.
func (w Window) RequiresCoverage() bool {
	return w.Duration > coverageThreshold
}

// Start returns the theoretical start of the window relative to now
func (w Window) Start(now time.Time) time.Time {
	return now.Add(-w.Duration)
}

// Standard uptime windows
var (
	Window1h  = Window{Name: "1h", Duration: time.Hour}
	Window24h = Window{Name: "24h", Duration: 24 * time.Hour}
	Window7d  = Window{Name: "7d", Duration: 7 * 24 * time.Hour}
	Window30d = Window{Name: "30d", Duration: 30 * 24 * time.Hour}
	Window3mo = Window{Name: "3mo", Duration: 90 * 24 * time.Hour}
	Window6mo = Window{Name: "6mo", Duration: 180 * 24 * time.Hour}
)

// DefaultWindows returns the windows shown on a monitor dashboard, shortest first
func DefaultWindows() []Window {
	return []Window{Window1h, Window24h, Window7d, Window30d, Window3mo, Window6mo}
}

// Longest returns the longest of the given windows
func Longest(windows []Window) Window {
	var longest Window
	for _, w := range windows {
		if w.Duration > longest.Duration {
			longest = w
		}
	}
	return longest
}
