package timeseries

import "time"

// Config holds configuration for the in-memory metrics store
type Config struct {
	// Maximum age of rows kept before pruning
	MaxWindow time.Duration

	// Ring buffer capacity of each series
	PointsPerSeries int

	// Guardrails
	MaxSeries          int // Maximum number of series (one per pod or node)
	MaxPointsPerSeries int // Points beyond this are dropped
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxWindow:          24 * time.Hour,
		PointsPerSeries:    20000,
		MaxSeries:          10000,
		MaxPointsPerSeries: 20000,
	}
}
