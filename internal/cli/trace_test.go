package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceListsRuns(t *testing.T) {
	dbPath := writeTraceDB(t, "run-1", passingTrace)

	out, err := execute(t, "trace", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 run(s)")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "checkout")
}

func TestTracePrintsRunEffects(t *testing.T) {
	dbPath := writeTraceDB(t, "run-1", passingTrace)

	out, err := execute(t, "trace", "--db", dbPath, "--run", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "wait_input")
	assert.Contains(t, out, "order.created")
	assert.Contains(t, out, "resolved")
}

func TestTraceMissingDatabaseIsCommandError(t *testing.T) {
	_, err := execute(t, "trace", "--db", "/no/such/trace.db")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceUnknownRunIsCommandError(t *testing.T) {
	dbPath := writeTraceDB(t, "run-1", passingTrace)

	_, err := execute(t, "trace", "--db", dbPath, "--run", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
