// Package scheduler composes one import session: take the single-flight
// lock, verify migration health, then run every pending batch directory
// and release the lock.
//
// This composition is the load-bearing invariant of the importer. The
// orchestrator deliberately does not lock or health-check itself, so
// every caller must go through a Tick; driving the orchestrator
// directly bypasses both gates.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sundew/sfimport/internal/lock"
	"github.com/sundew/sfimport/internal/orchestrator"
)

// BatchRunner runs one batch directory. *orchestrator.Orchestrator
// satisfies this.
type BatchRunner interface {
	Run(ctx context.Context, batchDir string) orchestrator.Result
}

// HealthChecker is the pre-flight gate. *health.Checker satisfies this.
type HealthChecker interface {
	CheckGroup(ctx context.Context, group string) bool
}

// DirLister yields pending batch directories, in processing order.
type DirLister func(sourceRoot string) ([]string, error)

// Report is the outcome of one tick. Lock and health refusals are plain
// fields, not errors: the caller's reaction to either is simply to wait
// for the next tick.
type Report struct {
	// LockAcquired is false when another run held the import lock.
	LockAcquired bool

	// Healthy is false when the migration group was not safe to import.
	Healthy bool

	// Results holds one entry per batch directory processed.
	Results []orchestrator.Result

	Started  time.Time
	Finished time.Time
}

// Failures counts results that ended in an error kind.
func (r Report) Failures() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// Scheduler drives import sessions.
type Scheduler struct {
	locker     lock.Locker
	checker    HealthChecker
	runner     BatchRunner
	list       DirLister
	group      string
	sourceRoot string
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a Scheduler.
func New(locker lock.Locker, checker HealthChecker, runner BatchRunner, list DirLister, group, sourceRoot string, opts ...Option) *Scheduler {
	s := &Scheduler{
		locker:     locker,
		checker:    checker,
		runner:     runner,
		list:       list,
		group:      group,
		sourceRoot: sourceRoot,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick runs one import session. The returned error covers only
// infrastructure failures (lock backend unreachable, source root
// unreadable); lock contention, unhealthy migrations, and per-batch
// failures are reported through the Report.
func (s *Scheduler) Tick(ctx context.Context) (report Report, err error) {
	report = Report{Started: s.now()}

	acquired, err := s.locker.Acquire(ctx)
	if err != nil {
		report.Finished = s.now()
		return report, fmt.Errorf("acquire import lock: %w", err)
	}
	if !acquired {
		s.logger.Info("import lock held elsewhere, skipping tick")
		report.Finished = s.now()
		return report, nil
	}
	report.LockAcquired = true

	// The lock is released exactly once, on every path out of this
	// session. Release failures are logged, not propagated: the TTL
	// bounds the damage of a stuck key.
	defer func() {
		if err := s.locker.Release(ctx); err != nil {
			s.logger.Error("failed to release import lock", "error", err)
		}
		report.Finished = s.now()
	}()

	if !s.checker.CheckGroup(ctx, s.group) {
		return report, nil
	}
	report.Healthy = true

	dirs, err := s.list(s.sourceRoot)
	if err != nil {
		return report, fmt.Errorf("list batch directories: %w", err)
	}

	for _, dir := range dirs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Results = append(report.Results, s.runner.Run(ctx, dir))
	}

	s.logger.Info("tick complete",
		"batches", len(report.Results),
		"failures", report.Failures(),
	)
	return report, nil
}

// Every runs a tick immediately and then once per interval, until the
// context is cancelled. Tick errors are logged and the loop keeps
// going; the next interval is the retry.
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, onReport func(Report)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := s.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("tick failed", "error", err)
		}
		if onReport != nil {
			onReport(report)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
