// Package orchestrator runs the per-batch import pipeline: scan, stage,
// invoke the transform engine, then archive or delete the consumed
// batch.
//
// Run never returns a Go error. Import is a best-effort batch job: every
// failure inside the pipeline is logged, captured in the typed Result,
// and the session moves on to the next batch. The next scheduled tick is
// the retry mechanism; there is no retry state here.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/sundew/sfimport/internal/config"
	"github.com/sundew/sfimport/internal/migrate"
	"github.com/sundew/sfimport/internal/stager"
)

// Mode is the execution context the orchestrator was constructed in.
// The batch restriction is a safety rail: an interactive web request
// must never trigger a synchronous import, so outside batch mode Run is
// a no-op. The decision is made explicitly at construction, not probed
// at runtime.
type Mode int

const (
	ModeInteractive Mode = iota
	ModeBatch
)

// FileValidator validates one batch file before staging.
// *validate.Validator satisfies this.
type FileValidator interface {
	ValidateFile(path string) error
}

// RunRecorder persists import run history. *migrate.Registry satisfies
// this.
type RunRecorder interface {
	RecordRun(ctx context.Context, run migrate.Run) error
}

// Orchestrator coordinates a single batch directory through the import
// pipeline. It does not acquire the import lock and does not run the
// health check: that composition belongs to the scheduling caller (see
// internal/scheduler), and skipping it there violates the invariant
// that imports only run locked and healthy.
type Orchestrator struct {
	settings config.Settings
	mode     Mode
	engine   migrate.Engine
	stg      *stager.Stager
	archiver *stager.Archiver

	validator FileValidator
	recorder  RunRecorder
	tokens    migrate.TokenSource
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithValidator enables pre-staging schema validation.
func WithValidator(v FileValidator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithRecorder enables run-history recording.
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithTokenSource overrides the run token source (for testing).
func WithTokenSource(src migrate.TokenSource) Option {
	return func(o *Orchestrator) { o.tokens = src }
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an Orchestrator. The engine capability is injected by the
// caller; pass migrate.UnavailableEngine{} where no engine can run.
func New(settings config.Settings, mode Mode, engine migrate.Engine, stg *stager.Stager, archiver *stager.Archiver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		settings: settings,
		mode:     mode,
		engine:   engine,
		stg:      stg,
		archiver: archiver,
		tokens:   migrate.UUIDv7Source{},
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run imports one batch directory. It is a no-op unless the importer is
// enabled and the orchestrator is in batch mode. All pipeline failures
// are captured in the Result; Run never panics the session.
func (o *Orchestrator) Run(ctx context.Context, batchDir string) Result {
	if !o.settings.Enabled || o.mode != ModeBatch {
		return Result{Kind: KindSkipped, Batch: batchDir}
	}

	started := o.now()
	token := o.tokens.Generate()
	result := o.stageAndImport(ctx, batchDir)

	if result.Failed() {
		o.logger.Error("batch import failed",
			"batch", batchDir,
			"kind", string(result.Kind),
			"error", result.Err,
		)
	} else {
		o.logger.Info("batch processed",
			"batch", batchDir,
			"kind", string(result.Kind),
			"files", result.Files,
		)
	}

	o.record(ctx, token, started, result)
	return result
}

// stageAndImport runs the scan, validate, stage, engine, archive
// pipeline for one batch.
func (o *Orchestrator) stageAndImport(ctx context.Context, batchDir string) Result {
	files, err := o.stg.Scan(batchDir)
	if err != nil {
		return Result{Kind: KindStagingError, Batch: batchDir, Err: err}
	}
	if len(files) == 0 {
		return Result{Kind: KindNoFiles, Batch: batchDir}
	}

	if o.validator != nil {
		for _, file := range files {
			if err := o.validator.ValidateFile(file); err != nil {
				return Result{Kind: KindStagingError, Batch: batchDir, Files: len(files), Err: err}
			}
		}
	}

	if err := o.stg.Stage(files); err != nil {
		return Result{Kind: KindStagingError, Batch: batchDir, Files: len(files), Err: err}
	}

	if err := o.engine.ProcessGroup(ctx, o.settings.Group); err != nil {
		return Result{Kind: KindEngineError, Batch: batchDir, Files: len(files), Err: err}
	}

	if o.settings.Backup.Enabled {
		if err := o.archiver.Archive(batchDir); err != nil {
			return Result{Kind: KindArchiveError, Batch: batchDir, Files: len(files), Err: err}
		}
	} else {
		if err := stager.Delete(batchDir); err != nil {
			return Result{Kind: KindArchiveError, Batch: batchDir, Files: len(files), Err: err}
		}
	}

	return Result{Kind: KindImported, Batch: batchDir, Files: len(files)}
}

// record writes the run history row. Recording failures are logged and
// otherwise ignored: history is operator convenience, not a correctness
// dependency of the pipeline.
func (o *Orchestrator) record(ctx context.Context, token string, started time.Time, result Result) {
	if o.recorder == nil {
		return
	}
	run := migrate.Run{
		Token:      token,
		Batch:      result.Batch,
		Outcome:    string(result.Kind),
		Files:      result.Files,
		StartedAt:  started,
		FinishedAt: o.now(),
	}
	if err := o.recorder.RecordRun(ctx, run); err != nil {
		o.logger.Error("failed to record import run", "token", token, "error", err)
	}
}
