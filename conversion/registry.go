package conversion

import (
	"github.com/gomlx/exceptions"
	"github.com/jiwoong-choi/TensorRT/fx"
)

// The converter registry is a statically populated table mapping the closed
// enumeration of (operator, overload) keys to lowering rules. It is built at
// package initialization and never mutated afterwards; lookup is exact-match
// with no fallback converter.

// converterFunc lowers one operator node: it validates operands and
// attributes, mutates the context's network builder and returns the produced
// values, one per node output. Failures are thrown as *Error.
type converterFunc func(ctx *Context, node *fx.Node) []*TensorValue

// converterSpec is one registry entry: the lowering rule plus the operand
// count it declares, validated by the driver before invocation.
// maxInputs < minInputs means "no upper bound".
type converterSpec struct {
	fn                   converterFunc
	minInputs, maxInputs int
}

var converterRegistry = make(map[fx.OpKey]converterSpec)

// registerConverter inserts a lowering rule for a unique (operator, overload)
// key. Re-registration is a programming error and panics at init time.
func registerConverter(key fx.OpKey, minInputs, maxInputs int, fn converterFunc) {
	if _, found := converterRegistry[key]; found {
		exceptions.Panicf("conversion: converter for %s registered twice", key)
	}
	converterRegistry[key] = converterSpec{fn: fn, minInputs: minInputs, maxInputs: maxInputs}
}

// resolveConverter finds the converter for node's key, raising
// UnsupportedOperator on a miss.
func resolveConverter(node *fx.Node) converterSpec {
	spec, found := converterRegistry[node.Key]
	if !found {
		raisef(UnsupportedOperator, node, "no converter registered for operator %s", node.Key)
	}
	return spec
}

// SupportedOps returns the registered operator keys; mostly for diagnostics
// of UnsupportedOperator failures.
func SupportedOps() []fx.OpKey {
	keys := make([]fx.OpKey, 0, len(converterRegistry))
	for key := range converterRegistry {
		keys = append(keys, key)
	}
	return keys
}
