package effect

// Awaitable is anything with a completion signal. Raw awaitables yielded
// by a process are classified as CategoryAsyncResult; the same interface
// is what the completion scheduler drains.
type Awaitable interface {
	// Done is closed once the value has settled.
	Done() <-chan struct{}
	// Err reports the settlement outcome. Valid only after Done is closed.
	Err() error
}

// Classify maps an opaque yielded value to its category.
//
// Total, side-effect-free, and deterministic. The checks run in a fixed
// priority order because a value can satisfy more than one predicate:
// a raw awaitable is recognized before any descriptor shape, so a type
// that both settles and looks like a descriptor counts as an async
// result. Anything matching no predicate is CategoryUnclassified.
func Classify(v any) Category {
	if _, ok := v.(Awaitable); ok {
		return CategoryAsyncResult
	}

	switch v.(type) {
	case WaitInput, *WaitInput:
		return CategoryWaitInput
	case Dispatch, *Dispatch:
		return CategoryDispatch
	case Race, *Race:
		return CategoryRace
	case Invoke, *Invoke:
		return CategoryInvoke
	case InvokeCallback, *InvokeCallback:
		return CategoryInvokeCallback
	case Fork, *Fork:
		return CategoryFork
	case Query, *Query:
		return CategoryQuery
	case Channel, *Channel:
		return CategoryChannel
	default:
		return CategoryUnclassified
	}
}
