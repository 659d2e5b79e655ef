package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probelab/sagaprobe/internal/store"
)

const testScenario = `
name: checkout happy path
task: checkout
expectations:
  - label: waits for payment
    category: wait_input
    effect:
      pattern: payment.confirmed
  - category: dispatch
    effect:
      message:
        type: order.created
`

// writeScenarioFile writes scenario YAML into a temp file.
func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeTraceDB creates a trace database holding one recorded run.
func writeTraceDB(t *testing.T, runID string, effects []store.EffectRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.db")

	s, err := store.Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, runID, "checkout"))
	for _, e := range effects {
		require.NoError(t, s.WriteEffect(ctx, runID, e.Seq, e.EffectID, e.Category, []byte(e.Payload)))
		if e.Outcome != "" && e.Outcome != "pending" {
			require.NoError(t, s.MarkOutcome(ctx, runID, e.EffectID, e.Outcome))
		}
	}
	return path
}

// execute runs the CLI with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var passingTrace = []store.EffectRecord{
	{Seq: 1, EffectID: "fx-1", Category: "wait_input",
		Payload: `{"pattern":"payment.confirmed"}`, Outcome: "resolved"},
	{Seq: 2, EffectID: "fx-2", Category: "dispatch",
		Payload: `{"message":{"type":"order.created"}}`, Outcome: "resolved"},
}
