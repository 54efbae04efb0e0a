package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommandEngine_EmptyCommand(t *testing.T) {
	_, err := NewCommandEngine(nil, "/stage")
	assert.Error(t, err)
}

func TestCommandEngine_Success(t *testing.T) {
	eng, err := NewCommandEngine([]string{"true"}, "/stage")
	require.NoError(t, err)

	assert.NoError(t, eng.ProcessGroup(context.Background(), "sf"))
}

func TestCommandEngine_Failure(t *testing.T) {
	eng, err := NewCommandEngine([]string{"false"}, "/stage")
	require.NoError(t, err)

	err = eng.ProcessGroup(context.Background(), "sf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transform engine")
}

func TestCommandEngine_ExportsEnvironment(t *testing.T) {
	// The child sees the staged path and group via environment.
	eng, err := NewCommandEngine([]string{"sh", "-c", `test "$SFIMPORT_GROUP" = sf && test "$SFIMPORT_STAGING" = /stage`}, "/stage")
	require.NoError(t, err)

	assert.NoError(t, eng.ProcessGroup(context.Background(), "sf"))
}

func TestUnavailableEngine(t *testing.T) {
	err := UnavailableEngine{}.ProcessGroup(context.Background(), "sf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}
