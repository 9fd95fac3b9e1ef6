package service

import (
	"context"
	"time"

	"github.com/aaronlmathis/kuptime/internal/errtrack"
	"github.com/aaronlmathis/kuptime/internal/models"
	"github.com/aaronlmathis/kuptime/internal/repository"
	"github.com/aaronlmathis/kuptime/internal/uptime"
	"go.uber.org/zap"
)

// DefaultHistoryFetchLimit caps the rows read for one history request.
const DefaultHistoryFetchLimit = 10000

// History is a downsampled check history, oldest first.
type History struct {
	MonitorID string          `json:"monitorId"`
	Since     time.Time       `json:"since"`
	Factor    int             `json:"factor"`
	Fetched   int             `json:"fetched"`
	Samples   []uptime.Sample `json:"samples"`
}

// HistoryService serves downsampled check history for charts.
type HistoryService struct {
	repo       repository.Repository
	reporter   errtrack.Reporter
	logger     *zap.Logger
	fetchLimit int
}

// NewHistoryService creates a history service. fetchLimit <= 0 uses DefaultHistoryFetchLimit.
func NewHistoryService(repo repository.Repository, reporter errtrack.Reporter, logger *zap.Logger, fetchLimit int) *HistoryService {
	if fetchLimit <= 0 {
		fetchLimit = DefaultHistoryFetchLimit
	}
	return &HistoryService{
		repo:       repo,
		reporter:   reporter,
		logger:     logger,
		fetchLimit: fetchLimit,
	}
}

// GetHistory returns checks since the given time, keeping every failure and
// thinning successes so roughly maxPoints of them remain. Errors are captured
// and produce an empty history.
func (s *HistoryService) GetHistory(ctx context.Context, monitorID string, since time.Time, maxPoints int) History {
	history := History{
		MonitorID: monitorID,
		Since:     since,
		Factor:    1,
		Samples:   []uptime.Sample{},
	}

	checks, err := s.repo.ListChecks(ctx, monitorID, since, s.fetchLimit)
	if err != nil {
		s.reporter.Capture(errtrack.WithComponent(ctx, "history"), err, zap.String("monitor_id", monitorID))
		return history
	}

	samples := models.Samples(checks)
	history.Fetched = len(samples)
	history.Factor = uptime.Factor(uptime.CountSuccesses(samples), maxPoints)
	history.Samples = uptime.Downsample(samples, history.Factor)

	if len(checks) == s.fetchLimit {
		s.logger.Debug("History fetch limit reached",
			zap.String("monitor_id", monitorID),
			zap.Int("limit", s.fetchLimit))
	}
	return history
}
