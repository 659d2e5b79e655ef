package effect

import (
	"bytes"
	"reflect"
)

// Equal decides whether an observed effect matches an expected one.
//
// Matching is structural, never reference identity. The predicate is
// pluggable: the harness uses DeepEqual unless the test author installs
// another via its WithEqual option.
type Equal func(observed, expected any) bool

// DeepEqual is the default matching predicate: reflect.DeepEqual after
// unwrapping a single level of pointer indirection on either side, so a
// yielded *Dispatch matches an expected Dispatch value.
func DeepEqual(observed, expected any) bool {
	return reflect.DeepEqual(indirect(observed), indirect(expected))
}

// CanonicalEqual matches by canonical JSON rendering instead of Go
// structure. Use it when one side of the comparison was decoded from a
// scenario file or a stored trace: a YAML integer and a Go int never
// satisfy reflect.DeepEqual, but they render to the same canonical
// JSON. Values that cannot be rendered match nothing.
func CanonicalEqual(observed, expected any) bool {
	a, err := MarshalCanonical(observed)
	if err != nil {
		return false
	}
	b, err := MarshalCanonical(expected)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func indirect(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return v
}
