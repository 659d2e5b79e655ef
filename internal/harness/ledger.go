package harness

import "github.com/probelab/sagaprobe/internal/effect"

// Expectation is one declared assertion: an effect of Value's shape must
// have been recorded under Category during the run.
type Expectation struct {
	Label    string
	Category effect.Category
	Value    any
}

// Ledger is the ordered list of declared expectations. Expectations
// accumulate before the run starts and are consumed exactly once, after
// the process has fully stopped.
type Ledger struct {
	expectations []Expectation
}

// Add appends an expectation in declaration order.
func (l *Ledger) Add(e Expectation) {
	l.expectations = append(l.expectations, e)
}

// Len returns the number of declared expectations.
func (l *Ledger) Len() int { return len(l.expectations) }

// All returns the declared expectations in declaration order.
func (l *Ledger) All() []Expectation {
	out := make([]Expectation, len(l.expectations))
	copy(out, l.expectations)
	return out
}

// Check consumes the ledger against the recorded multiset: each
// expectation, in declaration order, removes one matching occurrence
// from its category's bag. The first expectation that finds no match
// aborts the check with an UnmetExpectationError carrying the remaining
// bag; matching is fail-fast so the diagnostic renders the bag exactly
// as the failed removal saw it.
func (l *Ledger) Check(ms *effect.Multiset, eq effect.Equal) error {
	for _, exp := range l.expectations {
		if ms.TakeMatching(exp.Category, exp.Value, eq) {
			continue
		}
		return newUnmetExpectation(exp, ms.Snapshot(exp.Category))
	}
	return nil
}
