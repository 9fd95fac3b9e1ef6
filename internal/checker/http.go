package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aaronlmathis/kuptime/internal/models"
)

// maxBodyDrain bounds how much of a response body is read before closing.
const maxBodyDrain = 64 << 10

// HTTPChecker performs a GET against a monitor's URL.
type HTTPChecker struct {
	client    *http.Client
	userAgent string
	now       func() time.Time
}

// NewHTTPChecker creates a checker. A nil client uses one that does not follow redirects.
func NewHTTPChecker(client *http.Client, userAgent string) *HTTPChecker {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &HTTPChecker{client: client, userAgent: userAgent, now: time.Now}
}

// Check requests the monitor URL within its timeout. The check succeeds when
// the status equals ExpectedStatus, or is 2xx/3xx when no status is expected.
func (c *HTTPChecker) Check(ctx context.Context, monitor *models.Monitor) models.CheckResult {
	result := models.CheckResult{
		MonitorID: monitor.ID,
		CheckedAt: c.now().UTC(),
	}

	if timeout := monitor.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, monitor.URL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("invalid request: %v", err)
		return result
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		result.Error = err.Error()
		result.ResponseTime = msec(elapsed)
		return result
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyDrain))

	result.StatusCode = resp.StatusCode
	result.ResponseTime = msec(elapsed)
	result.Success = statusOK(resp.StatusCode, monitor.ExpectedStatus)
	if !result.Success {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return result
}

func statusOK(code, expected int) bool {
	if expected != 0 {
		return code == expected
	}
	return code >= 200 && code < 400
}

func msec(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
