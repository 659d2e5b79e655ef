package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/sagaprobe/internal/store"
)

func TestCheckPassingTrace(t *testing.T) {
	scenarioPath := writeScenarioFile(t, testScenario)
	dbPath := writeTraceDB(t, "run-1", passingTrace)

	out, err := execute(t, "check", scenarioPath, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "satisfies")
}

func TestCheckUnmetExpectationFails(t *testing.T) {
	scenarioPath := writeScenarioFile(t, testScenario)
	dbPath := writeTraceDB(t, "run-1", []store.EffectRecord{
		{Seq: 1, EffectID: "fx-1", Category: "dispatch",
			Payload: `{"message":{"type":"order.failed"}}`, Outcome: "resolved"},
	})

	out, err := execute(t, "check", scenarioPath, "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E004")
	assert.Contains(t, out, "unmet expectation")
}

func TestCheckSelectsOnlyRunByDefault(t *testing.T) {
	scenarioPath := writeScenarioFile(t, testScenario)
	dbPath := writeTraceDB(t, "run-only", passingTrace)

	out, err := execute(t, "--format", "json", "check", scenarioPath, "--db", dbPath)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result CheckResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "run-only", result.RunID)
	assert.True(t, result.Passed)
	assert.Equal(t, 2, result.Effects)
}

func TestCheckUnknownRunIsCommandError(t *testing.T) {
	scenarioPath := writeScenarioFile(t, testScenario)
	dbPath := writeTraceDB(t, "run-1", passingTrace)

	_, err := execute(t, "check", scenarioPath, "--db", dbPath, "--run", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCheckMissingDatabaseIsCommandError(t *testing.T) {
	scenarioPath := writeScenarioFile(t, testScenario)

	_, err := execute(t, "check", scenarioPath, "--db", "/no/such/trace.db")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
