package effect

// Multiset stores every observed effect, bucketed by category, in
// insertion order. Equal-valued effects accumulate as independent
// occurrences, each removable exactly once.
//
// Multiset is NOT safe for concurrent use on its own. All mutation is
// serialized through the harness's monitor, the single logical owner of
// run state.
type Multiset struct {
	bags map[Category][]any
}

// NewMultiset creates an empty multiset. One multiset belongs to exactly
// one harness instance and lives for that instance's single run.
func NewMultiset() *Multiset {
	return &Multiset{bags: make(map[Category][]any)}
}

// Record appends an occurrence of v to the category's bag.
// Re-recording an equal value adds a second, independently removable
// occurrence.
func (m *Multiset) Record(c Category, v any) {
	m.bags[c] = append(m.bags[c], v)
}

// TakeMatching removes the first occurrence in c's bag that eq considers
// equal to expected, reporting whether a removal happened. At most one
// occurrence is removed per call, and only from category c.
func (m *Multiset) TakeMatching(c Category, expected any, eq Equal) bool {
	if eq == nil {
		eq = DeepEqual
	}
	bag := m.bags[c]
	for i, got := range bag {
		if eq(got, expected) {
			// Nil out the removed slot before reslicing so the backing
			// array does not retain the effect value.
			copy(bag[i:], bag[i+1:])
			bag[len(bag)-1] = nil
			m.bags[c] = bag[:len(bag)-1]
			return true
		}
	}
	return false
}

// Snapshot returns the remaining effects of a category in insertion
// order. The returned slice is a copy; used only for diagnostics.
func (m *Multiset) Snapshot(c Category) []any {
	bag := m.bags[c]
	out := make([]any, len(bag))
	copy(out, bag)
	return out
}

// Len returns the number of remaining occurrences in a category's bag.
func (m *Multiset) Len(c Category) int {
	return len(m.bags[c])
}
