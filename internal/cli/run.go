package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sundew/sfimport/internal/config"
	"github.com/sundew/sfimport/internal/health"
	"github.com/sundew/sfimport/internal/lock"
	"github.com/sundew/sfimport/internal/migrate"
	"github.com/sundew/sfimport/internal/orchestrator"
	"github.com/sundew/sfimport/internal/scheduler"
	"github.com/sundew/sfimport/internal/stager"
	"github.com/sundew/sfimport/internal/validate"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// Every, when positive, loops ticks at that interval until a
	// signal arrives. Zero means a single tick (the cron-friendly mode).
	Every time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one import tick (or loop with --every)",
		Long: `Run an import session: acquire the single-flight lock, verify the
migration group is idle, then stage and import every pending batch
directory and archive or delete the consumed batches.

Lock contention and an unhealthy group are refusals, not failures: the
command exits 0 and the next scheduled invocation retries. Exit code 1
means at least one batch failed during the session.

Example:
  sfimport run --config /etc/sfimport.yml
  sfimport run --config /etc/sfimport.yml --every 10m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Every, "every", 0, "tick interval; 0 runs a single tick")

	return cmd
}

func runImport(opts *RunOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load settings", err)
	}
	if !cfg.Enabled {
		formatter.Textf("import disabled in settings\n")
		return nil
	}

	sched, cleanup, err := buildScheduler(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.Every > 0 {
		err := sched.Every(ctx, opts.Every, func(report scheduler.Report) {
			_ = writeReport(formatter, report)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitCommandError, "scheduler stopped", err)
		}
		return nil
	}

	report, err := sched.Tick(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "import tick failed", err)
	}
	if err := writeReport(formatter, report); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	if report.Failures() > 0 {
		return NewExitError(ExitFailure, "one or more batches failed")
	}
	return nil
}

// buildScheduler wires the full import stack from settings. The
// returned cleanup releases the registry and lock backend.
func buildScheduler(cfg config.Settings) (*scheduler.Scheduler, func(), error) {
	registry, err := migrate.OpenRegistry(cfg.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open migration registry", err)
	}
	cleanup := func() { registry.Close() }

	locker, lockCleanup, err := buildLocker(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if lockCleanup != nil {
		inner := cleanup
		cleanup = func() {
			lockCleanup()
			inner()
		}
	}

	if len(cfg.Engine.Command) == 0 {
		cleanup()
		return nil, nil, NewExitError(ExitCommandError, "engine.command is required to run imports")
	}
	engine, err := migrate.NewCommandEngine(cfg.Engine.Command, cfg.StagingPath)
	if err != nil {
		cleanup()
		return nil, nil, WrapExitError(ExitCommandError, "invalid engine command", err)
	}

	orchOpts := []orchestrator.Option{orchestrator.WithRecorder(registry)}
	if cfg.Schema != "" {
		validator, err := validate.Load(cfg.Schema)
		if err != nil {
			cleanup()
			return nil, nil, WrapExitError(ExitCommandError, "failed to load batch schema", err)
		}
		orchOpts = append(orchOpts, orchestrator.WithValidator(validator))
	}

	orch := orchestrator.New(
		cfg,
		orchestrator.ModeBatch,
		engine,
		stager.New(cfg.StagingPath),
		stager.NewArchiver(cfg.Backup.Root, cfg.Backup.Limit),
		orchOpts...,
	)

	sched := scheduler.New(
		locker,
		health.NewChecker(registry, nil),
		orch,
		stager.ListBatchDirectories,
		cfg.Group,
		cfg.SourceRoot,
	)
	return sched, cleanup, nil
}

// buildLocker selects the lock backend: Redis when configured,
// otherwise in-process.
func buildLocker(cfg config.Settings) (lock.Locker, func(), error) {
	if cfg.Lock.RedisURL == "" {
		return lock.NewMemoryLocker(cfg.Lock.TTL.Std()), nil, nil
	}

	locker, err := lock.NewRedisLocker(cfg.Lock.RedisURL, cfg.Lock.Name, cfg.Lock.TTL.Std())
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to build redis locker", err)
	}
	return locker, func() { locker.Close() }, nil
}

// reportView is the JSON shape of a tick report.
type reportView struct {
	LockAcquired bool        `json:"lock_acquired"`
	Healthy      bool        `json:"healthy"`
	Batches      []batchView `json:"batches"`
	Failures     int         `json:"failures"`
	Started      time.Time   `json:"started"`
	Finished     time.Time   `json:"finished"`
}

type batchView struct {
	Batch string `json:"batch"`
	Kind  string `json:"kind"`
	Files int    `json:"files"`
	Error string `json:"error,omitempty"`
}

func writeReport(f *OutputFormatter, report scheduler.Report) error {
	if f.Format == "json" {
		view := reportView{
			LockAcquired: report.LockAcquired,
			Healthy:      report.Healthy,
			Batches:      []batchView{},
			Failures:     report.Failures(),
			Started:      report.Started,
			Finished:     report.Finished,
		}
		for _, res := range report.Results {
			bv := batchView{Batch: res.Batch, Kind: string(res.Kind), Files: res.Files}
			if res.Err != nil {
				bv.Error = res.Err.Error()
			}
			view.Batches = append(view.Batches, bv)
		}
		return f.JSON(view)
	}

	if !report.LockAcquired {
		f.Textf("skipped: import lock held elsewhere\n")
		return nil
	}
	if !report.Healthy {
		f.Textf("skipped: migration group not idle\n")
		return nil
	}

	f.Textf("processed %d batch(es), %d failure(s)\n", len(report.Results), report.Failures())
	for _, res := range report.Results {
		f.Textf("  %s\n", res.String())
	}
	return nil
}
