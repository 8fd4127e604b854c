package store

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Projection (tagged variant)
// --------------------------------------------------------------------------

type projectionKind uint8

const (
	projIdentity projectionKind = iota
	projSelector
	projReducer
)

// Projection narrows a subscription's interest to a derived value. It is
// a tagged variant with three cases, resolved once at subscription
// creation time:
//
//   - Identity: the stored value itself (the zero value of Projection).
//   - SelectorPath: a dot-separated property path looked up in object
//     values, e.g. "user.name".
//   - Reducer: an arbitrary function from value to derived value.
//
// The derived value is the unit of change detection: a subscriber's
// callback fires only when its derived value actually changed.
type Projection struct {
	kind projectionKind
	path string
	fn   func(interface{}) interface{}
}

// Identity returns the identity projection. Equivalent to the zero value.
func Identity() Projection {
	return Projection{}
}

// SelectorPath returns a projection that looks up a dot-separated
// property path in object values. Missing segments yield nil.
func SelectorPath(path string) Projection {
	return Projection{kind: projSelector, path: path}
}

// Reducer returns a projection that applies an arbitrary function.
// A reducer that panics is reported as a projection failure for the
// affected subscription only.
func Reducer(fn func(value interface{}) interface{}) Projection {
	return Projection{kind: projReducer, fn: fn}
}

// IsIdentity reports whether p is the identity projection.
func (p Projection) IsIdentity() bool {
	return p.kind == projIdentity
}

// Selector returns the selector path and whether p is a selector
// projection. Used by callers that need to ship a projection over a wire.
func (p Projection) Selector() (path string, ok bool) {
	return p.path, p.kind == projSelector
}

// IsReducer reports whether p is a reducer projection.
func (p Projection) IsReducer() bool {
	return p.kind == projReducer
}

// Apply computes the derived value for v. Selector lookups on absent or
// non-object values yield nil; a panicking reducer is converted into a
// RetCProjectionFailure error.
func (p Projection) Apply(v interface{}) (derived interface{}, err error) {
	switch p.kind {
	case projIdentity:
		return v, nil

	case projSelector:
		return selectPath(v, p.path), nil

	case projReducer:
		defer func() {
			if r := recover(); r != nil {
				derived = nil
				err = NewError(RetCProjectionFailure, fmt.Sprintf("reducer panicked: %v", r))
			}
		}()
		return p.fn(v), nil

	default:
		return nil, NewError(RetCInternalError, "unknown projection kind")
	}
}

// selectPath walks a dot-separated property path through nested object
// values. Any miss along the way yields nil.
func selectPath(v interface{}, path string) interface{} {
	current := v
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = obj[segment]
		if !ok {
			return nil
		}
	}
	return current
}
