package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/probelab/sagaprobe/internal/scenario"
)

// ValidationResult holds validation results for one scenario file.
type ValidationResult struct {
	File         string `json:"file"`
	Valid        bool   `json:"valid"`
	Name         string `json:"name,omitempty"`
	Task         string `json:"task,omitempty"`
	Expectations int    `json:"expectations,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Validate scenario files without running anything",
		Long: `Validate scenario YAML files against the scenario schema.

Checks field names, category names, timeout syntax, and expectation
shapes without touching a trace database.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	results := make([]ValidationResult, 0, len(paths))
	failed := 0
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			formatter.Error(ErrCodeNotFound, fmt.Sprintf("scenario file not found: %s", path), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("scenario file not found: %s", path))
		}

		res := ValidationResult{File: path, Valid: true}
		sc, err := scenario.Load(path)
		if err != nil {
			res.Valid = false
			res.Error = err.Error()
			failed++
		} else {
			res.Name = sc.Name
			res.Task = sc.Task
			res.Expectations = len(sc.Expectations)
			// The ledger build exercises descriptor decoding, which the
			// schema alone cannot.
			if _, err := sc.Ledger(); err != nil {
				res.Valid = false
				res.Error = err.Error()
				failed++
			}
		}
		results = append(results, res)
		formatter.VerboseLog("validated %s: valid=%v", path, res.Valid)
	}

	if failed > 0 {
		if err := formatter.Error(ErrCodeBadScenario,
			fmt.Sprintf("%d of %d scenario file(s) invalid", failed, len(paths)), results); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	if opts.Format == "json" {
		return formatter.Success(results)
	}
	return formatter.Success(fmt.Sprintf("%d scenario file(s) valid", len(paths)))
}
