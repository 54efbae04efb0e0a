package migrate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := OpenRegistry(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestOpenRegistry_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	reg, err := OpenRegistry(path)
	require.NoError(t, err)
	require.NoError(t, reg.Close())

	// Reopening applies the schema again without error.
	reg, err = OpenRegistry(path)
	require.NoError(t, err)
	assert.NoError(t, reg.Close())
}

func TestGroupDefinitions_OrderedAndFiltered(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	seed := []Definition{
		{ID: "sf_sessions", Group: "sf", Status: StatusIdle},
		{ID: "sf_classes", Group: "sf", Status: StatusImporting},
		{ID: "other_nodes", Group: "other", Status: StatusIdle},
	}
	for _, def := range seed {
		require.NoError(t, reg.UpsertDefinition(ctx, def))
	}

	defs, err := reg.GroupDefinitions(ctx, "sf")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	// Ordered by id; the other group's definitions are excluded.
	assert.Equal(t, "sf_classes", defs[0].ID)
	assert.Equal(t, StatusImporting, defs[0].Status)
	assert.Equal(t, "sf_sessions", defs[1].ID)
	assert.Equal(t, StatusIdle, defs[1].Status)
}

func TestGroupDefinitions_EmptyGroup(t *testing.T) {
	reg := openTestRegistry(t)

	defs, err := reg.GroupDefinitions(context.Background(), "sf")
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestUpsertDefinition_UpdatesStatus(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.UpsertDefinition(ctx, Definition{ID: "sf_sessions", Group: "sf", Status: StatusIdle}))
	require.NoError(t, reg.UpsertDefinition(ctx, Definition{ID: "sf_sessions", Group: "sf", Status: StatusRollingBack}))

	defs, err := reg.GroupDefinitions(ctx, "sf")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, StatusRollingBack, defs[0].Status)
}

func TestRecordRun_AndRecentRuns(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	runs := []Run{
		{Token: "run-1", Batch: "/in/b1", Outcome: "imported", Files: 4, StartedAt: base, FinishedAt: base.Add(time.Minute)},
		{Token: "run-2", Batch: "/in/b2", Outcome: "engine_error", Files: 2, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Minute)},
		{Token: "run-3", Batch: "/in/b3", Outcome: "no_files", Files: 0, StartedAt: base.Add(2 * time.Hour), FinishedAt: base.Add(2 * time.Hour)},
	}
	for _, run := range runs {
		require.NoError(t, reg.RecordRun(ctx, run))
	}

	got, err := reg.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest first, capped at limit.
	assert.Equal(t, "run-3", got[0].Token)
	assert.Equal(t, "run-2", got[1].Token)
	assert.Equal(t, "engine_error", got[1].Outcome)
	assert.Equal(t, 2, got[1].Files)
	assert.True(t, got[1].StartedAt.Equal(base.Add(time.Hour)))
}

func TestRecordRun_DuplicateTokenIgnored(t *testing.T) {
	reg := openTestRegistry(t)
	ctx := context.Background()

	run := Run{Token: "run-1", Batch: "/in/b1", Outcome: "imported", StartedAt: time.Now(), FinishedAt: time.Now()}
	require.NoError(t, reg.RecordRun(ctx, run))

	run.Outcome = "staging_error"
	require.NoError(t, reg.RecordRun(ctx, run))

	got, err := reg.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "imported", got[0].Outcome)
}

func TestStatusCodesRoundTrip(t *testing.T) {
	for _, st := range []Status{StatusIdle, StatusImporting, StatusRollingBack, StatusStopping, StatusDisabled} {
		parsed, err := ParseStatus(st.Code())
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}

	_, err := ParseStatus("bogus")
	assert.Error(t, err)
}

func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "Idle", StatusIdle.Label())
	assert.Equal(t, "Rolling back", StatusRollingBack.Label())
	assert.Equal(t, "Disabled", StatusDisabled.Label())
}
