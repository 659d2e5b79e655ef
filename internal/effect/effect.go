package effect

import "fmt"

// Category is the classification bucket an emitted effect belongs to.
//
// Every value a process yields is classified into exactly one category.
// Categories drive multiset storage and expectation matching: an
// expectation targets one category and is matched only against that
// category's bag.
type Category int

const (
	// CategoryAsyncResult is a raw awaitable (future-like) value yielded
	// directly, rather than a shaped descriptor. Checked FIRST during
	// classification because an awaitable may also carry descriptor shape.
	CategoryAsyncResult Category = iota + 1

	// CategoryWaitInput is a request to block until an input arrives.
	CategoryWaitInput

	// CategoryDispatch is a request to emit an output message.
	CategoryDispatch

	// CategoryRace is a request to race several sub-operations.
	CategoryRace

	// CategoryInvoke is a request to call a named function and await it.
	CategoryInvoke

	// CategoryInvokeCallback is a callback-style (CPS) function call.
	CategoryInvokeCallback

	// CategoryFork is a request to spawn a named child task.
	CategoryFork

	// CategoryQuery is a request to read from the environment's state.
	CategoryQuery

	// CategoryChannel is a request to acquire an input channel.
	CategoryChannel

	// CategoryUnclassified is the bucket for values matching no known
	// shape. Recorded for diagnostics, never matchable by expectations.
	CategoryUnclassified
)

// String returns the category name used in diagnostics, logs, scenario
// files, and the trace store.
func (c Category) String() string {
	switch c {
	case CategoryAsyncResult:
		return "async_result"
	case CategoryWaitInput:
		return "wait_input"
	case CategoryDispatch:
		return "dispatch"
	case CategoryRace:
		return "race"
	case CategoryInvoke:
		return "invoke"
	case CategoryInvokeCallback:
		return "invoke_callback"
	case CategoryFork:
		return "fork"
	case CategoryQuery:
		return "query"
	case CategoryChannel:
		return "channel"
	case CategoryUnclassified:
		return "unclassified"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// ParseCategory maps a category name back to its Category.
// Used by the scenario loader and the CLI trace reader.
func ParseCategory(s string) (Category, error) {
	for c := CategoryAsyncResult; c <= CategoryUnclassified; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown effect category %q", s)
}

// Message is the unit of input and output exchanged with a process.
// Inputs injected into the environment and payloads of Dispatch effects
// are both Messages, so expectations compare like with like.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// WaitInput requests the next input whose type matches Pattern.
// An empty Pattern or "*" matches any input. Maybe marks the optional
// variant: the environment may resolve it with no input at all.
type WaitInput struct {
	Pattern string `json:"pattern"`
	Maybe   bool   `json:"maybe,omitempty"`
}

// Dispatch requests that Message be emitted as process output.
// Resolve marks the resolved variant (the environment settles the
// dispatch before the process resumes); Maybe marks the optional variant.
type Dispatch struct {
	Message Message `json:"message"`
	Resolve bool    `json:"resolve,omitempty"`
	Maybe   bool    `json:"maybe,omitempty"`
}

// Race requests that the named sub-operations run against each other;
// the first to settle wins and the rest are abandoned.
type Race struct {
	Ops map[string]any `json:"ops"`
}

// Invoke requests a call to the named function with Args, awaiting its
// return value.
type Invoke struct {
	Fn   string `json:"fn"`
	Args []any  `json:"args,omitempty"`
}

// InvokeCallback requests a callback-style call: the named function
// receives Args plus a completion callback, and the effect resolves when
// that callback fires.
type InvokeCallback struct {
	Fn   string `json:"fn"`
	Args []any  `json:"args,omitempty"`
}

// Fork requests that the named registered task be spawned as a child.
// The effect resolves with the running child's task handle.
//
// Fork targets are names, not function values, so fork effects stay pure
// data and structural equality is always defined.
type Fork struct {
	Task string `json:"task"`
	Args []any  `json:"args,omitempty"`
}

// Query requests the value of the named selector over the environment's
// current state.
type Query struct {
	Selector string `json:"selector"`
}

// Channel requests an input channel scoped to Pattern.
type Channel struct {
	Pattern string `json:"pattern"`
}
