package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aaronlmathis/kuptime/internal/metrics"
	"go.uber.org/zap"
)

// Job names
const (
	JobCheckMonitors      = "check-monitors"
	JobWarmDashboards     = "warm-dashboards"
	JobCollectKubeMetrics = "collect-kube-metrics"
	JobPruneMetrics       = "prune-metrics"
)

// Job is a periodic task.
type Job struct {
	Name       string
	Interval   time.Duration
	LeaderOnly bool
	// RunOnStart runs the job immediately instead of waiting one interval.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Runner runs registered jobs on their own tickers until stopped.
type Runner struct {
	logger *zap.Logger
	role   NodeRole

	mu      sync.Mutex
	jobs    []Job
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRunner creates a runner for the given role.
func NewRunner(logger *zap.Logger, role NodeRole) *Runner {
	return &Runner{
		logger: logger,
		role:   role,
		stopCh: make(chan struct{}),
	}
}

// Register adds a job. It must be called before Start.
func (r *Runner) Register(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("cannot register job %s after start", job.Name)
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: run func is required", job.Name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Start launches every job this role is allowed to run.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return
	}
	r.started = true

	for _, job := range r.jobs {
		if job.LeaderOnly && !r.role.IsLeader() {
			r.logger.Info("Skipping leader-only job on follower", zap.String("job", job.Name))
			continue
		}

		r.logger.Info("Starting job",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval))

		r.wg.Add(1)
		go r.loop(ctx, job)
	}
}

// Stop signals every job and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	defer r.wg.Done()

	if job.RunOnStart {
		r.runJob(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Job stopped due to context cancellation", zap.String("job", job.Name))
			return
		case <-r.stopCh:
			r.logger.Debug("Job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			r.runJob(ctx, job)
		}
	}
}

func (r *Runner) runJob(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		r.logger.Error("Job failed",
			zap.String("job", job.Name),
			zap.Duration("duration", duration),
			zap.Error(err))
	}
	metrics.RecordJob(job.Name, status, duration)
}
