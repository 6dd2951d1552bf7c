package conversion

import (
	"fmt"

	"github.com/jiwoong-choi/TensorRT/fx"
)

// ErrorKind classifies conversion failures. Every failure is deterministic
// given the same input graph: the driver never retries.
type ErrorKind int

const (
	// UnsupportedOperator: no converter registered for the node's (operator,
	// overload) key. Fatal to the conversion; the caller may fall back to a
	// different execution path.
	UnsupportedOperator ErrorKind = iota

	// BroadcastError: operand shapes are incompatible at some point of the
	// declared range.
	BroadcastError

	// TypePromotionError: operand dtypes cannot be combined under the
	// operator's rules.
	TypePromotionError

	// InvalidAttribute: an attribute is missing or out of its valid domain.
	InvalidAttribute

	// UnsupportedDynamicShape: the converter cannot propagate ranged shapes
	// for this operator; supply static shapes instead.
	UnsupportedDynamicShape

	// AmbiguousDynamicChunkCount: a ranged shape yields a different number of
	// non-empty chunk pieces at different ends of the range.
	AmbiguousDynamicChunkCount
)

var errorKindNames = [...]string{
	UnsupportedOperator:        "UnsupportedOperator",
	BroadcastError:             "BroadcastError",
	TypePromotionError:         "TypePromotionError",
	InvalidAttribute:           "InvalidAttribute",
	UnsupportedDynamicShape:    "UnsupportedDynamicShape",
	AmbiguousDynamicChunkCount: "AmbiguousDynamicChunkCount",
}

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(errorKindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return errorKindNames[k]
}

// Error is a structured conversion failure: kind, offending node and a
// human-readable detail. Extract it from a driver error with errors.As.
type Error struct {
	Kind   ErrorKind
	Node   *fx.Node // nil when the failure is not tied to one node.
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Node == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s at node %s: %s", e.Kind, e.Node, e.Detail)
}

// raisef throws a structured conversion error; the driver catches it and
// aborts the whole conversion.
func raisef(kind ErrorKind, node *fx.Node, format string, args ...any) {
	panic(&Error{Kind: kind, Node: node, Detail: fmt.Sprintf(format, args...)})
}
