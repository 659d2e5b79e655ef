package effect

import (
	"encoding/json"
	"fmt"
)

// DecodeDescriptor parses a JSON-encoded effect payload back into its
// typed descriptor for the given category. Categories without a
// descriptor shape (async results, unclassified values) decode to the
// generic JSON form.
//
// Inverse of MarshalCanonical for descriptor categories; the scenario
// checker and the trace reader both round-trip through it so recorded
// effects and declared expectations compare like with like.
func DecodeDescriptor(c Category, data []byte) (any, error) {
	var err error
	switch c {
	case CategoryWaitInput:
		var d WaitInput
		err = json.Unmarshal(data, &d)
		return d, err
	case CategoryDispatch:
		var d Dispatch
		err = json.Unmarshal(data, &d)
		return d, err
	case CategoryRace:
		var d Race
		err = json.Unmarshal(data, &d)
		return d, err
	case CategoryInvoke:
		var d Invoke
		err = json.Unmarshal(data, &d)
		return d, err
	case CategoryInvokeCallback:
		var d InvokeCallback
		err = json.Unmarshal(data, &d)
		return d, err
	case CategoryFork:
		var d Fork
		err = json.Unmarshal(data, &d)
		return d, err
	case CategoryQuery:
		var d Query
		err = json.Unmarshal(data, &d)
		return d, err
	case CategoryChannel:
		var d Channel
		err = json.Unmarshal(data, &d)
		return d, err
	case CategoryAsyncResult, CategoryUnclassified:
		var v any
		err = json.Unmarshal(data, &v)
		return v, err
	default:
		return nil, fmt.Errorf("decode descriptor: unknown category %d", int(c))
	}
}
