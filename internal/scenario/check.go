package scenario

import (
	"fmt"

	"github.com/probelab/sagaprobe/internal/effect"
	"github.com/probelab/sagaprobe/internal/store"
)

// CheckTrace verifies a recorded trace against the scenario's
// expectations. Both sides round-trip through canonical JSON, so a
// trace written by one process build checks identically against the
// scenario forever after.
//
// Returns nil when every expectation finds a distinct matching trace
// row; otherwise the first unmet expectation, rendered with the
// remaining rows of its category.
func CheckTrace(sc *Scenario, trace []store.EffectRecord) error {
	ms := effect.NewMultiset()
	for _, rec := range trace {
		cat, err := effect.ParseCategory(rec.Category)
		if err != nil {
			return fmt.Errorf("trace row %d: %w", rec.Seq, err)
		}
		val, err := effect.DecodeDescriptor(cat, []byte(rec.Payload))
		if err != nil {
			return fmt.Errorf("trace row %d: %w", rec.Seq, err)
		}
		ms.Record(cat, val)
	}

	ledger, err := sc.Ledger()
	if err != nil {
		return err
	}
	return ledger.Check(ms, effect.CanonicalEqual)
}
