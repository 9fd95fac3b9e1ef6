package timeseries

import (
	"testing"
	"time"
)

func TestSelectInterval(t *testing.T) {
	tests := []struct {
		minutes  int
		expected time.Duration
	}{
		{0, 0},
		{60, 0},
		{360, 0},
		{361, 5 * time.Minute},
		{1440, 5 * time.Minute},
		{1441, 15 * time.Minute},
		{10080, 15 * time.Minute},
		{10081, 30 * time.Minute},
		{43200, 30 * time.Minute},
	}

	for _, tt := range tests {
		if got := SelectInterval(tt.minutes); got != tt.expected {
			t.Errorf("SelectInterval(%d) = %v, want %v", tt.minutes, got, tt.expected)
		}
	}
}
