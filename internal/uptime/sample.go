package uptime

import (
	"math"
	"time"
)

// Sample is the result of a single health check
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	ResponseTime float64   `json:"responseTime"` // milliseconds
}

// NewSample creates a new Sample
func NewSample(t time.Time, success bool, responseTime float64) Sample {
	return Sample{Timestamp: t, Success: success, ResponseTime: responseTime}
}

// CountSuccesses returns the number of successful samples
func CountSuccesses(samples []Sample) int {
	n := 0
	for _, s := range samples {
		if s.Success {
			n++
		}
	}
	return n
}

// round2 rounds v to two decimal places
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
