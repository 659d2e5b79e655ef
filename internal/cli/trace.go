package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/probelab/sagaprobe/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// TraceResult holds the trace output for one run.
type TraceResult struct {
	RunID     string              `json:"run_id"`
	RootTask  string              `json:"root_task"`
	StartedAt string              `json:"started_at"`
	Effects   []store.EffectRecord `json:"effects"`
}

// RunListing is the output when no run is selected.
type RunListing struct {
	Runs []store.RunRecord `json:"runs"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded run traces",
		Long: `Inspect the trace database.

Without --run, lists all recorded runs. With --run, prints that run's
effects in emission order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "trace.db", "trace database path")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to print")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

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

	if opts.RunID == "" {
		runs, err := s.ListRuns(ctx)
		if err != nil {
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "list runs", err)
		}
		if opts.Format == "json" {
			return formatter.Success(RunListing{Runs: runs})
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d run(s):", len(runs))
		for _, r := range runs {
			fmt.Fprintf(&b, "\n  %s  %s  %s", r.ID, r.RootTask, r.StartedAt)
		}
		return formatter.Success(b.String())
	}

	run, err := s.GetRun(ctx, opts.RunID)
	if err != nil {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
		return WrapExitError(ExitCommandError, "get run", err)
	}

	effects, err := s.ReadEffects(ctx, opts.RunID)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "read trace", err)
	}

	result := TraceResult{
		RunID:     run.ID,
		RootTask:  run.RootTask,
		StartedAt: run.StartedAt,
		Effects:   effects,
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s, started %s)", run.ID, run.RootTask, run.StartedAt)
	for _, e := range effects {
		fmt.Fprintf(&b, "\n  [%d] %-15s %-8s %s", e.Seq, e.Category, e.Outcome, e.Payload)
	}
	return formatter.Success(b.String())
}
