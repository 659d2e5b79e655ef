package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/probelab/sagaprobe/internal/harness"
	"github.com/probelab/sagaprobe/internal/scenario"
	"github.com/probelab/sagaprobe/internal/store"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// CheckResult holds the outcome of checking one trace.
type CheckResult struct {
	Scenario string `json:"scenario"`
	RunID    string `json:"run_id"`
	RootTask string `json:"root_task"`
	Effects  int    `json:"effects"`
	Passed   bool   `json:"passed"`
	Failure  string `json:"failure,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <scenario.yaml>",
		Short: "Check a recorded trace against a scenario",
		Long: `Check a run's recorded effect trace against a scenario's expectations.

Reads the trace from the database, decodes each effect, and consumes
the scenario's expectations against it in declaration order. Exit code
1 means an expectation went unmet; the first miss is rendered with the
remaining effects of its category.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "trace.db", "trace database path")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to check (default: only run in the database)")

	return cmd
}

func runCheck(opts *CheckOptions, scenarioPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	sc, err := scenario.Load(scenarioPath)
	if err != nil {
		formatter.Error(ErrCodeBadScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load scenario", err)
	}

	if _, err := os.Stat(opts.Database); err != nil {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("trace database not found: %s", opts.Database), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("trace database not found: %s", opts.Database))
	}

	s, err := store.Open(opts.Database)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open trace database", err)
	}
	defer s.Close()

	runID := opts.RunID
	if runID == "" {
		runs, err := s.ListRuns(ctx)
		if err != nil {
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "list runs", err)
		}
		switch len(runs) {
		case 0:
			formatter.Error(ErrCodeNotFound, "no runs recorded in database", nil)
			return NewExitError(ExitCommandError, "no runs recorded in database")
		case 1:
			runID = runs[0].ID
		default:
			formatter.Error(ErrCodeGeneric,
				fmt.Sprintf("%d runs in database; pick one with --run", len(runs)), nil)
			return NewExitError(ExitCommandError, "ambiguous run selection")
		}
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", runID), nil)
		return WrapExitError(ExitCommandError, "get run", err)
	}

	trace, err := s.ReadEffects(ctx, runID)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "read trace", err)
	}
	formatter.VerboseLog("checking run %s (%d effects) against %q", runID, len(trace), sc.Name)

	result := CheckResult{
		Scenario: sc.Name,
		RunID:    run.ID,
		RootTask: run.RootTask,
		Effects:  len(trace),
		Passed:   true,
	}

	if err := scenario.CheckTrace(sc, trace); err != nil {
		result.Passed = false
		result.Failure = err.Error()

		code := ErrCodeBadTrace
		if harness.IsUnmetExpectation(err) {
			code = ErrCodeUnmet
		}
		if ferr := formatter.Error(code, err.Error(), result); ferr != nil {
			return ferr
		}
		return NewExitError(ExitFailure, "trace check failed")
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("run %s satisfies %q (%d effects)", run.ID, sc.Name, len(trace)))
}
