package checker

import (
	"context"
	"sync"
	"time"

	"github.com/aaronlmathis/kuptime/internal/metrics"
	"github.com/aaronlmathis/kuptime/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Checker runs one check for a monitor.
type Checker interface {
	Check(ctx context.Context, monitor *models.Monitor) models.CheckResult
}

// MonitorSource lists monitors to check.
type MonitorSource interface {
	ListMonitors(ctx context.Context) ([]*models.Monitor, error)
}

// Recorder persists check results.
type Recorder interface {
	RecordCheck(ctx context.Context, check *models.CheckResult) error
}

// Publisher fans results out to live subscribers.
type Publisher interface {
	Publish(room, msgType string, data interface{})
}

// EventCheckResult is the message type published for every check.
const EventCheckResult = "check_result"

// SchedulerConfig bounds how hard the scheduler hits targets.
type SchedulerConfig struct {
	Concurrency int
	// RatePerSecond limits check starts across all monitors. 0 disables the limit.
	RatePerSecond float64
	Burst         int
}

// Scheduler decides which monitors are due and checks them.
type Scheduler struct {
	logger    *zap.Logger
	source    MonitorSource
	checker   Checker
	recorder  Recorder
	publisher Publisher
	limiter   *rate.Limiter
	config    SchedulerConfig
	now       func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewScheduler creates a new scheduler. publisher may be nil.
func NewScheduler(logger *zap.Logger, source MonitorSource, checker Checker, recorder Recorder, publisher Publisher, config SchedulerConfig) *Scheduler {
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RatePerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}

	return &Scheduler{
		logger:    logger,
		source:    source,
		checker:   checker,
		recorder:  recorder,
		publisher: publisher,
		limiter:   limiter,
		config:    config,
		now:       time.Now,
		lastRun:   make(map[string]time.Time),
	}
}

// RunOnce checks every enabled monitor whose interval has elapsed and returns
// how many checks ran. Individual check or persistence failures are logged
// and do not stop the pass.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	monitors, err := s.source.ListMonitors(ctx)
	if err != nil {
		return 0, err
	}

	due := s.due(monitors)
	if len(due) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	started := 0
	for i, m := range due {
		monitor := m
		if err := s.limiter.Wait(gctx); err != nil {
			s.unmark(due[i:])
			break
		}
		started++
		g.Go(func() error {
			s.run(gctx, monitor)
			return nil
		})
	}
	g.Wait()

	return started, ctx.Err()
}

// unmark clears the stamps due set for monitors that never ran, so the next
// pass picks them up again.
func (s *Scheduler) unmark(monitors []*models.Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range monitors {
		delete(s.lastRun, m.ID)
	}
}

// due marks and returns the monitors that should be checked now.
func (s *Scheduler) due(monitors []*models.Monitor) []*models.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	present := make(map[string]bool, len(monitors))
	var out []*models.Monitor

	for _, m := range monitors {
		present[m.ID] = true
		if !m.Enabled {
			continue
		}
		if last, ok := s.lastRun[m.ID]; ok && now.Sub(last) < m.Interval() {
			continue
		}
		s.lastRun[m.ID] = now
		out = append(out, m)
	}

	for id := range s.lastRun {
		if !present[id] {
			delete(s.lastRun, id)
		}
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, monitor *models.Monitor) {
	start := time.Now()
	result := s.checker.Check(ctx, monitor)
	metrics.RecordCheck(result.Success, time.Since(start))

	if err := s.recorder.RecordCheck(ctx, &result); err != nil {
		s.logger.Error("Failed to record check",
			zap.String("monitor_id", monitor.ID),
			zap.Error(err))
		return
	}

	if !result.Success {
		s.logger.Warn("Monitor check failed",
			zap.String("monitor_id", monitor.ID),
			zap.String("url", monitor.URL),
			zap.Int("status_code", result.StatusCode),
			zap.String("error", result.Error))
	}

	if s.publisher != nil {
		s.publisher.Publish(monitor.ID, EventCheckResult, result)
	}
}
