package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/probelab/sagaprobe/internal/effect"
)

// SettlementErrorCode categorizes run settlement failures.
type SettlementErrorCode string

const (
	// ErrCodeUnmetExpectation indicates a declared expectation found no
	// matching recorded effect at check time.
	ErrCodeUnmetExpectation SettlementErrorCode = "UNMET_EXPECTATION"

	// ErrCodeProcessFailure indicates the process's own completion
	// carried an error.
	ErrCodeProcessFailure SettlementErrorCode = "PROCESS_FAILURE"
)

// UnmetExpectationError is produced when an expectation's removal from
// the recorded multiset fails during the post-run check. It carries
// everything needed to act on the mismatch: the expectation's label, the
// rendered expected effect, and a rendering of every effect still
// present in the targeted category's bag.
type UnmetExpectationError struct {
	// Label is the expectation's human label.
	Label string

	// Category is the targeted effect category.
	Category effect.Category

	// Expected is the canonical rendering of the expected effect.
	Expected string

	// Remaining renders the effects still unmatched in the category's
	// bag, in insertion order. Empty when nothing of that category was
	// recorded at all.
	Remaining []string
}

// Error implements the error interface.
// Layout: expectation first, then the actual bag for context.
func (e *UnmetExpectationError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "unmet expectation: %s\n", e.Label)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  remaining %s effects:\n", e.Category)

	if len(e.Remaining) == 0 {
		buf.WriteString("    (none recorded)\n")
		return buf.String()
	}
	for i, r := range e.Remaining {
		fmt.Fprintf(&buf, "    [%d] %s\n", i+1, r)
	}
	return buf.String()
}

// Code returns ErrCodeUnmetExpectation.
func (e *UnmetExpectationError) Code() SettlementErrorCode {
	return ErrCodeUnmetExpectation
}

// newUnmetExpectation renders an expectation miss against the remaining
// bag of its category.
func newUnmetExpectation(exp Expectation, remaining []any) *UnmetExpectationError {
	rendered := make([]string, len(remaining))
	for i, r := range remaining {
		rendered[i] = effect.Describe(r)
	}
	return &UnmetExpectationError{
		Label:     exp.Label,
		Category:  exp.Category,
		Expected:  effect.Describe(exp.Value),
		Remaining: rendered,
	}
}

// ProcessError wraps a failure of the process's own completion signal.
// It takes precedence over expectation failures in the run settlement.
type ProcessError struct {
	Err error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	return fmt.Sprintf("process failed: %v", e.Err)
}

// Unwrap exposes the underlying process failure.
func (e *ProcessError) Unwrap() error { return e.Err }

// Code returns ErrCodeProcessFailure.
func (e *ProcessError) Code() SettlementErrorCode {
	return ErrCodeProcessFailure
}

// IsUnmetExpectation reports whether err is (or wraps) an unmet
// expectation failure.
func IsUnmetExpectation(err error) bool {
	var ue *UnmetExpectationError
	return errors.As(err, &ue)
}

// IsProcessFailure reports whether err is (or wraps) a process failure.
func IsProcessFailure(err error) bool {
	var pe *ProcessError
	return errors.As(err, &pe)
}
