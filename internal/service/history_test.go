package service

import (
	"context"
	"testing"
	"time"

	"github.com/aaronlmathis/kuptime/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHistoryService_GetHistory(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	reporter := &recordingReporter{}
	svc := NewHistoryService(repo, reporter, zaptest.NewLogger(t), 0)

	// 20 successes and 2 failures, newest first as the repository returns them
	for i := 0; i < 22; i++ {
		repo.checks = append(repo.checks, models.CheckResult{
			MonitorID:    "m1",
			CheckedAt:    testNow.Add(-time.Duration(i) * time.Minute),
			Success:      i != 5 && i != 15,
			ResponseTime: 250,
		})
	}

	history := svc.GetHistory(ctx, "m1", testNow.Add(-time.Hour), 5)
	assert.Equal(t, 22, history.Fetched)
	assert.Equal(t, 4, history.Factor)
	assert.Equal(t, DefaultHistoryFetchLimit, repo.lastLimit)

	require.Len(t, history.Samples, 7)
	failures := 0
	for i, s := range history.Samples {
		if i > 0 {
			assert.False(t, s.Timestamp.Before(history.Samples[i-1].Timestamp), "samples must be ascending")
		}
		if !s.Success {
			failures++
			assert.Equal(t, 0.0, s.ResponseTime)
		}
	}
	assert.Equal(t, 2, failures)
	assert.Equal(t, 0, reporter.count())
}

func TestHistoryService_NoDownsampling(t *testing.T) {
	repo := newFakeRepository()
	svc := NewHistoryService(repo, &recordingReporter{}, zaptest.NewLogger(t), 50)

	repo.checks = append(repo.checks,
		models.CheckResult{MonitorID: "m1", CheckedAt: testNow, Success: true, ResponseTime: 10},
		models.CheckResult{MonitorID: "m1", CheckedAt: testNow.Add(-time.Minute), Success: true, ResponseTime: 20},
	)

	history := svc.GetHistory(context.Background(), "m1", testNow.Add(-time.Hour), 500)
	assert.Equal(t, 1, history.Factor)
	assert.Equal(t, 50, repo.lastLimit)
	require.Len(t, history.Samples, 2)
	assert.Equal(t, 20.0, history.Samples[0].ResponseTime)
}

func TestHistoryService_Failure(t *testing.T) {
	repo := newFakeRepository()
	repo.setFailChecks(true)
	reporter := &recordingReporter{}
	svc := NewHistoryService(repo, reporter, zaptest.NewLogger(t), 0)

	history := svc.GetHistory(context.Background(), "m1", testNow.Add(-time.Hour), 100)
	assert.NotNil(t, history.Samples)
	assert.Empty(t, history.Samples)
	assert.Equal(t, 1, history.Factor)

	require.Equal(t, 1, reporter.count())
	assert.Equal(t, "history", reporter.captured[0].component)
}
