package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundew/sfimport/internal/config"
	"github.com/sundew/sfimport/internal/migrate"
	"github.com/sundew/sfimport/internal/stager"
	"github.com/sundew/sfimport/internal/testutil"
)

// fakeEngine records invocations and returns a canned error.
type fakeEngine struct {
	calls  int
	groups []string
	err    error
}

func (f *fakeEngine) ProcessGroup(ctx context.Context, group string) error {
	f.calls++
	f.groups = append(f.groups, group)
	return f.err
}

// fakeRecorder captures recorded runs.
type fakeRecorder struct {
	runs []migrate.Run
	err  error
}

func (f *fakeRecorder) RecordRun(ctx context.Context, run migrate.Run) error {
	f.runs = append(f.runs, run)
	return f.err
}

// rejectAll fails validation for every file.
type rejectAll struct{}

func (rejectAll) ValidateFile(path string) error {
	return errors.New("schema violation")
}

type fixture struct {
	settings config.Settings
	staging  string
	backups  string
	engine   *fakeEngine
	orch     *Orchestrator
}

func newFixture(t *testing.T, mutate func(*config.Settings)) *fixture {
	t.Helper()

	f := &fixture{
		staging: filepath.Join(t.TempDir(), "staging"),
		backups: filepath.Join(t.TempDir(), "backups"),
		engine:  &fakeEngine{},
	}

	f.settings = config.Default()
	f.settings.Enabled = true
	f.settings.StagingPath = f.staging
	f.settings.Backup.Root = f.backups
	if mutate != nil {
		mutate(&f.settings)
	}

	f.orch = New(
		f.settings,
		ModeBatch,
		f.engine,
		stager.New(f.staging),
		stager.NewArchiver(f.backups, f.settings.Backup.Limit),
	)
	return f
}

func TestRun_SkippedWhenDisabled(t *testing.T) {
	f := newFixture(t, func(s *config.Settings) { s.Enabled = false })
	batch := testutil.WriteBatch(t, t.TempDir(), "b1", map[string]string{"sessions.json": "{}"})

	result := f.orch.Run(context.Background(), batch)

	assert.Equal(t, KindSkipped, result.Kind)
	assert.Zero(t, f.engine.calls)

	// The batch is untouched.
	_, err := os.Stat(batch)
	assert.NoError(t, err)
}

func TestRun_SkippedOutsideBatchMode(t *testing.T) {
	f := newFixture(t, nil)
	interactive := New(f.settings, ModeInteractive, f.engine, stager.New(f.staging), stager.NewArchiver(f.backups, 0))

	batch := testutil.WriteBatch(t, t.TempDir(), "b1", map[string]string{"sessions.json": "{}"})
	result := interactive.Run(context.Background(), batch)

	assert.Equal(t, KindSkipped, result.Kind)
	assert.Zero(t, f.engine.calls)
}

func TestRun_NoFilesIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	batch := testutil.WriteBatch(t, t.TempDir(), "b1", map[string]string{"readme.txt": "no json here"})

	result := f.orch.Run(context.Background(), batch)

	assert.Equal(t, KindNoFiles, result.Kind)
	assert.Zero(t, f.engine.calls)

	// No copy, no archival, no delete.
	_, err := os.Stat(f.staging)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(batch)
	assert.NoError(t, err)
}

func TestRun_EndToEnd_BackupsDisabled(t *testing.T) {
	f := newFixture(t, nil)
	batch := testutil.WriteBatch(t, t.TempDir(), "b1", map[string]string{"sessions.json": `{"kind":"sessions"}`})

	result := f.orch.Run(context.Background(), batch)

	require.Equal(t, KindImported, result.Kind)
	assert.Equal(t, 1, result.Files)

	// Staging received the file, the engine ran once for the group.
	got, err := os.ReadFile(filepath.Join(f.staging, "sessions.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"sessions"}`, string(got))
	assert.Equal(t, 1, f.engine.calls)
	assert.Equal(t, []string{"sf"}, f.engine.groups)

	// Backups disabled: the batch directory is gone.
	_, err = os.Stat(batch)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_BackupsEnabled(t *testing.T) {
	f := newFixture(t, func(s *config.Settings) { s.Backup.Enabled = true })
	batch := testutil.WriteBatch(t, t.TempDir(), "b1", map[string]string{"sessions.json": "{}"})

	result := f.orch.Run(context.Background(), batch)

	require.Equal(t, KindImported, result.Kind)

	// The whole original batch moved under the backup root.
	_, err := os.Stat(batch)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(f.backups, "b1", "sessions.json"))
	assert.NoError(t, err)
}

func TestRun_EngineErrorLeavesBatch(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.err = errors.New("transform blew up")
	batch := testutil.WriteBatch(t, t.TempDir(), "b1", map[string]string{"sessions.json": "{}"})

	result := f.orch.Run(context.Background(), batch)

	assert.Equal(t, KindEngineError, result.Kind)
	assert.True(t, result.Failed())
	assert.ErrorContains(t, result.Err, "transform blew up")

	// Batch stays put for the next tick; staged copies remain.
	_, err := os.Stat(batch)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(f.staging, "sessions.json"))
	assert.NoError(t, err)
}

func TestRun_ValidationFailureIsStagingError(t *testing.T) {
	f := newFixture(t, nil)
	batch := testutil.WriteBatch(t, t.TempDir(), "b1", map[string]string{"sessions.json": "{}"})

	orch := New(f.settings, ModeBatch, f.engine, stager.New(f.staging), stager.NewArchiver(f.backups, 0),
		WithValidator(rejectAll{}))

	result := orch.Run(context.Background(), batch)

	assert.Equal(t, KindStagingError, result.Kind)
	assert.Zero(t, f.engine.calls)

	// Nothing was staged.
	_, err := os.Stat(f.staging)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_RecordsHistory(t *testing.T) {
	f := newFixture(t, nil)
	recorder := &fakeRecorder{}
	clock := testutil.NewFixedClock(time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC))

	orch := New(f.settings, ModeBatch, f.engine, stager.New(f.staging), stager.NewArchiver(f.backups, 0),
		WithRecorder(recorder),
		WithTokenSource(migrate.NewFixedTokenSource("run-1")),
		WithClock(clock.Now))

	batch := testutil.WriteBatch(t, t.TempDir(), "b1", map[string]string{"sessions.json": "{}"})
	result := orch.Run(context.Background(), batch)

	require.Equal(t, KindImported, result.Kind)
	require.Len(t, recorder.runs, 1)

	run := recorder.runs[0]
	assert.Equal(t, "run-1", run.Token)
	assert.Equal(t, batch, run.Batch)
	assert.Equal(t, "imported", run.Outcome)
	assert.Equal(t, 1, run.Files)
	assert.True(t, run.StartedAt.Equal(clock.Now()))
}

func TestRun_RecorderFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t, nil)
	recorder := &fakeRecorder{err: errors.New("registry unavailable")}

	orch := New(f.settings, ModeBatch, f.engine, stager.New(f.staging), stager.NewArchiver(f.backups, 0),
		WithRecorder(recorder),
		WithTokenSource(migrate.NewFixedTokenSource("run-1")))

	batch := testutil.WriteBatch(t, t.TempDir(), "b1", map[string]string{"sessions.json": "{}"})
	result := orch.Run(context.Background(), batch)

	assert.Equal(t, KindImported, result.Kind)
}

func TestResult_Failed(t *testing.T) {
	assert.False(t, Result{Kind: KindImported}.Failed())
	assert.False(t, Result{Kind: KindNoFiles}.Failed())
	assert.False(t, Result{Kind: KindSkipped}.Failed())
	assert.True(t, Result{Kind: KindStagingError}.Failed())
	assert.True(t, Result{Kind: KindEngineError}.Failed())
	assert.True(t, Result{Kind: KindArchiveError}.Failed())
}
