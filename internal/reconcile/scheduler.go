package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// defaultInterval is used when the configured interval is not positive.
const defaultInterval = time.Hour

// ErrSweepInProgress is returned by RunOnce when another sweep is running.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Runner performs one sweep. *Sweeper implements it.
type Runner interface {
	Sweep(ctx context.Context, now time.Time) (Report, error)
}

// SchedulerConfig controls how often sweeps run.
type SchedulerConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

// Status is a snapshot of the scheduler's recent activity.
type Status struct {
	Running    bool      `json:"running"`
	Sweeping   bool      `json:"sweeping"`
	Runs       int       `json:"runs"`
	Skipped    int       `json:"skipped"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastReport Report    `json:"last_report"`
	LastError  string    `json:"last_error,omitempty"`
}

// Scheduler runs sweeps on a fixed interval and on demand. At most one
// sweep runs at a time; a tick or trigger arriving mid-sweep is skipped.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger
	now        func() time.Time

	sweeping  atomic.Bool
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}

	mu      sync.Mutex
	running bool
	status  Status
}

// NewScheduler creates a Scheduler for runner. A nil logger uses
// slog.Default.
func NewScheduler(runner Runner, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: cfg.RunOnStart,
		logger:     logger,
		now:        time.Now,
		triggerCh:  make(chan struct{}, 1),
	}
}

// Start launches the sweep loop. It returns immediately; the loop exits
// when ctx is cancelled or Stop is called. Starting twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.status.Running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	s.stopCh, s.doneCh = stopCh, doneCh
	s.mu.Unlock()

	go s.loop(ctx, stopCh, doneCh)
}

// Stop halts the loop and waits for an in-flight sweep to finish. If the
// loop already exited because its context ended, Stop only waits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	wasRunning := s.running
	s.running = false
	s.status.Running = false
	s.stopCh = nil
	s.mu.Unlock()

	if doneCh == nil {
		return
	}
	if wasRunning && stopCh != nil {
		close(stopCh)
	}
	<-doneCh
}

// Trigger requests an immediate sweep without blocking. It reports
// false when a request is already queued.
func (s *Scheduler) Trigger() bool {
	select {
	case s.triggerCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	st.Sweeping = s.sweeping.Load()
	return st
}

// RunOnce runs a sweep synchronously unless one is already running, in
// which case it returns ErrSweepInProgress.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.status.Skipped++
		s.mu.Unlock()
		s.logger.Info("sweep skipped, previous sweep still running")
		return Report{}, ErrSweepInProgress
	}
	defer s.sweeping.Store(false)

	report, err := s.sweep(ctx)

	s.mu.Lock()
	s.status.Runs++
	s.status.LastRun = report.StartedAt
	s.status.LastReport = report
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("sweep failed", "error", err)
	}
	return report, err
}

// sweep runs the runner, converting a panic into an error so one bad
// cycle never takes the loop down.
func (s *Scheduler) sweep(ctx context.Context) (report Report, err error) {
	now := s.now()
	defer func() {
		if r := recover(); r != nil {
			report = Report{StartedAt: now}
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()
	return s.runner.Sweep(ctx, now)
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.RunOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.status.Running = false
			s.mu.Unlock()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.triggerCh:
			s.RunOnce(ctx)
		}
	}
}
