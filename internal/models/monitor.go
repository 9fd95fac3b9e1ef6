package models

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/aaronlmathis/kuptime/internal/uptime"
	"github.com/google/uuid"
)

// Monitor is an HTTP endpoint checked on a fixed interval.
type Monitor struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	URL             string    `json:"url" db:"url"`
	IntervalSeconds int       `json:"intervalSeconds" db:"interval_seconds"`
	TimeoutSeconds  int       `json:"timeoutSeconds" db:"timeout_seconds"`
	ExpectedStatus  int       `json:"expectedStatus" db:"expected_status"`
	Enabled         bool      `json:"enabled" db:"enabled"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// CreateMonitorRequest is the payload accepted when registering a monitor.
type CreateMonitorRequest struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	IntervalSeconds int    `json:"intervalSeconds"`
	TimeoutSeconds  int    `json:"timeoutSeconds"`
	ExpectedStatus  int    `json:"expectedStatus"`
	Enabled         *bool  `json:"enabled,omitempty"`
}

// Validate checks the request and fills in defaults for optional fields.
func (r *CreateMonitorRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return errors.New("name is required")
	}

	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("url must be an absolute http or https URL")
	}

	if r.IntervalSeconds == 0 {
		r.IntervalSeconds = 60
	}
	if r.IntervalSeconds < 10 {
		return errors.New("intervalSeconds must be at least 10")
	}
	if r.TimeoutSeconds == 0 {
		r.TimeoutSeconds = 10
	}
	if r.TimeoutSeconds < 1 || r.TimeoutSeconds > r.IntervalSeconds {
		return errors.New("timeoutSeconds must be between 1 and intervalSeconds")
	}
	if r.ExpectedStatus != 0 && (r.ExpectedStatus < 100 || r.ExpectedStatus > 599) {
		return errors.New("expectedStatus must be a valid HTTP status code")
	}
	return nil
}

// NewMonitor builds a monitor with a fresh id from a validated request.
func NewMonitor(req CreateMonitorRequest, now time.Time) *Monitor {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &Monitor{
		ID:              uuid.NewString(),
		Name:            req.Name,
		URL:             req.URL,
		IntervalSeconds: req.IntervalSeconds,
		TimeoutSeconds:  req.TimeoutSeconds,
		ExpectedStatus:  req.ExpectedStatus,
		Enabled:         enabled,
		CreatedAt:       now.UTC(),
	}
}

// Interval returns the check interval as a duration.
func (m *Monitor) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// Timeout returns the per-check timeout as a duration.
func (m *Monitor) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// CheckResult is one persisted health check.
type CheckResult struct {
	ID           int64     `json:"id" db:"id"`
	MonitorID    string    `json:"monitorId" db:"monitor_id"`
	CheckedAt    time.Time `json:"checkedAt" db:"checked_at"`
	Success      bool      `json:"success" db:"success"`
	ResponseTime float64   `json:"responseTime" db:"response_time_ms"`
	StatusCode   int       `json:"statusCode" db:"status_code"`
	Error        string    `json:"error,omitempty" db:"error"`
}

// Sample converts the check into the aggregation input.
func (c CheckResult) Sample() uptime.Sample {
	return uptime.NewSample(c.CheckedAt, c.Success, c.ResponseTime)
}

// Samples converts checks, keeping their order.
func Samples(checks []CheckResult) []uptime.Sample {
	samples := make([]uptime.Sample, len(checks))
	for i, c := range checks {
		samples[i] = c.Sample()
	}
	return samples
}
