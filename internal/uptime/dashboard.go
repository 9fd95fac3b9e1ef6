package uptime

import "time"

// WindowResult is the availability summary for a single window
type WindowResult struct {
	Window          string  `json:"window"`
	Availability    float64 `json:"availability"` // percent, or Insufficient
	AvgResponseTime float64 `json:"avgResponseTime"`
	Sufficient      bool    `json:"sufficient"`
	Samples         int     `json:"samples"`
}

// Dashboard holds per-window results for a monitor
type Dashboard struct {
	Windows         map[string]WindowResult `json:"windows"`
	Order           []string                `json:"order"`
	AvgResponseTime float64                 `json:"avgResponseTime"`
	TotalSamples    int                     `json:"totalSamples"`
	ComputedAt      time.Time               `json:"computedAt"`
}

// Get returns the result for the named window
func (d Dashboard) Get(name string) (WindowResult, bool) {
	r, ok := d.Windows[name]
	return r, ok
}

// ComputeDashboard computes availability for every window from samples.
//
// Availability is computed per window, but the average response time is computed once
// over every sample passed in and reported for each non-empty window.
func ComputeDashboard(samples []Sample, now time.Time, windows []Window) Dashboard {
	d := newDashboard(windows, now)
	d.TotalSamples = len(samples)

	if len(samples) == 0 {
		return d
	}

	var total float64
	for _, s := range samples {
		total += s.ResponseTime
	}
	avg := round2(total / float64(len(samples)))
	d.AvgResponseTime = avg

	for _, w := range windows {
		d.Windows[w.Name] = computeWindow(samples, now, w, avg)
	}

	return d
}

// ZeroDashboard returns a dashboard with every window zeroed. It is what callers get
// when history cannot be loaded.
func ZeroDashboard(windows []Window, now time.Time) Dashboard {
	return newDashboard(windows, now)
}

func newDashboard(windows []Window, now time.Time) Dashboard {
	d := Dashboard{
		Windows:    make(map[string]WindowResult, len(windows)),
		Order:      make([]string, 0, len(windows)),
		ComputedAt: now,
	}
	for _, w := range windows {
		d.Windows[w.Name] = WindowResult{Window: w.Name}
		d.Order = append(d.Order, w.Name)
	}
	return d
}

func computeWindow(samples []Sample, now time.Time, w Window, avg float64) WindowResult {
	result := WindowResult{Window: w.Name}

	start := w.Start(now)
	var count, successes int
	var earliest time.Time
	for _, s := range samples {
		if !s.Timestamp.After(start) {
			continue
		}
		count++
		if s.Success {
			successes++
		}
		if earliest.IsZero() || s.Timestamp.Before(earliest) {
			earliest = s.Timestamp
		}
	}

	result.Samples = count
	if count == 0 {
		return result
	}

	result.AvgResponseTime = avg

	if w.RequiresCoverage() && earliest.After(start.Add(CoverageTolerance)) {
		result.Availability = Insufficient
		return result
	}

	result.Sufficient = true
	result.Availability = round2(100 * float64(successes) / float64(count))
	return result
}
