package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMonitorRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateMonitorRequest
		wantErr bool
	}{
		{name: "valid with defaults", req: CreateMonitorRequest{Name: "api", URL: "https://example.com/healthz"}},
		{name: "missing name", req: CreateMonitorRequest{Name: "  ", URL: "https://example.com"}, wantErr: true},
		{name: "relative url", req: CreateMonitorRequest{Name: "api", URL: "/healthz"}, wantErr: true},
		{name: "unsupported scheme", req: CreateMonitorRequest{Name: "api", URL: "ftp://example.com"}, wantErr: true},
		{name: "interval too short", req: CreateMonitorRequest{Name: "api", URL: "http://example.com", IntervalSeconds: 5}, wantErr: true},
		{name: "timeout beyond interval", req: CreateMonitorRequest{Name: "api", URL: "http://example.com", IntervalSeconds: 30, TimeoutSeconds: 60}, wantErr: true},
		{name: "bad expected status", req: CreateMonitorRequest{Name: "api", URL: "http://example.com", ExpectedStatus: 700}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 60, tt.req.IntervalSeconds)
			assert.Equal(t, 10, tt.req.TimeoutSeconds)
		})
	}
}

func TestNewMonitor(t *testing.T) {
	disabled := false
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	m := NewMonitor(CreateMonitorRequest{Name: "api", URL: "https://example.com", IntervalSeconds: 30, TimeoutSeconds: 5}, now)
	assert.NotEmpty(t, m.ID)
	assert.True(t, m.Enabled)
	assert.Equal(t, 30*time.Second, m.Interval())
	assert.Equal(t, 5*time.Second, m.Timeout())
	assert.Equal(t, now, m.CreatedAt)

	other := NewMonitor(CreateMonitorRequest{Name: "api", URL: "https://example.com", Enabled: &disabled}, now)
	assert.False(t, other.Enabled)
	assert.NotEqual(t, m.ID, other.ID)
}

func TestSamples(t *testing.T) {
	now := time.Now()
	checks := []CheckResult{
		{CheckedAt: now, Success: true, ResponseTime: 120},
		{CheckedAt: now.Add(-time.Minute), Success: false, ResponseTime: 900},
	}

	samples := Samples(checks)
	require.Len(t, samples, 2)
	assert.True(t, samples[0].Success)
	assert.Equal(t, 120.0, samples[0].ResponseTime)
	assert.False(t, samples[1].Success)
	assert.Equal(t, now.Add(-time.Minute), samples[1].Timestamp)
}
