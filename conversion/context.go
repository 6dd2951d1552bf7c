package conversion

import (
	"fmt"
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/jiwoong-choi/TensorRT/engine"
	"github.com/jiwoong-choi/TensorRT/fx"
	"github.com/x448/float16"
)

// TensorValue is a produced value at the engine level: the resolved shape
// range, dtype (carried by the range) and the engine tensor handle. Values
// are owned by the Context that created them and referenced, never copied,
// by downstream nodes.
type TensorValue struct {
	Range ShapeRange
	T     *engine.Tensor
}

// scalarKey identifies a scalar constant in the materialization cache.
type scalarKey struct {
	dtype dtypes.DType
	bits  uint64
}

// Context is the state of one graph conversion: the target network builder,
// the map from source value names to produced TensorValues, and the cache of
// already materialized constants. One Context per conversion, exclusively
// owned by the single-threaded walk; never shared.
type Context struct {
	graph   *fx.Graph
	network *engine.Network

	values map[string]*TensorValue

	// Constant cache: the same constant referenced by different nodes maps to
	// one engine tensor. Tensors are keyed by identity, scalars by value.
	tensorConstants map[*tensors.Tensor]*engine.Tensor
	scalarConstants map[scalarKey]*engine.Tensor

	// currentNode is the node being converted, for error reporting.
	currentNode *fx.Node
}

func newContext(graph *fx.Graph) *Context {
	return &Context{
		graph:           graph,
		network:         engine.NewNetwork(graph.Name()),
		values:          make(map[string]*TensorValue),
		tensorConstants: make(map[*tensors.Tensor]*engine.Tensor),
		scalarConstants: make(map[scalarKey]*engine.Tensor),
	}
}

// Network returns the instruction network being built.
func (ctx *Context) Network() *engine.Network { return ctx.network }

// value resolves a previously produced value by name. The driver converts in
// dependency order, so a miss is a malformed graph.
func (ctx *Context) value(name string) *TensorValue {
	v, found := ctx.values[name]
	if !found {
		raisef(UnsupportedOperator, ctx.currentNode, "operand %q has not been produced yet -- graph is not topologically valid", name)
	}
	return v
}

func (ctx *Context) setValue(name string, v *TensorValue) {
	ctx.values[name] = v
}

// constantValue materializes a constant tensor into the network, reusing the
// engine tensor if the same constant was lowered before within this context.
func (ctx *Context) constantValue(name string, value *tensors.Tensor) *TensorValue {
	t, found := ctx.tensorConstants[value]
	if !found {
		t = ctx.network.AddConstant(value)
		ctx.tensorConstants[value] = t
	}
	return &TensorValue{
		Range: FromStatic(value.Shape()),
		T:     t,
	}
}

// scalarConstant materializes a scalar literal as a rank-0 engine constant of
// the given dtype, cached per (dtype, value).
func (ctx *Context) scalarConstant(scalar *fx.Scalar, dtype dtypes.DType) *TensorValue {
	key, value := scalarTensor(scalar, dtype)
	t, found := ctx.scalarConstants[key]
	if !found {
		t = ctx.network.AddConstant(value)
		ctx.scalarConstants[key] = t
	}
	return &TensorValue{
		Range: FromStatic(value.Shape()),
		T:     t,
	}
}

// scalarTensor builds the rank-0 tensor holding scalar converted to dtype,
// along with its cache key.
func scalarTensor(scalar *fx.Scalar, dtype dtypes.DType) (scalarKey, *tensors.Tensor) {
	switch dtype {
	case dtypes.Bool:
		// Non-boolean literals follow the usual truthiness rule: any
		// non-zero value reads as true.
		v := scalarInt(scalar) != 0
		bits := uint64(0)
		if v {
			bits = 1
		}
		return scalarKey{dtype, bits}, tensors.FromScalar(v)
	case dtypes.Float16:
		v := scalarFloat(scalar)
		return scalarKey{dtype, uint64(float16.Fromfloat32(float32(v)).Bits())}, tensors.FromScalar(float16.Fromfloat32(float32(v)))
	case dtypes.Float32:
		v := float32(scalarFloat(scalar))
		return scalarKey{dtype, uint64(math.Float32bits(v))}, tensors.FromScalar(v)
	case dtypes.Float64:
		v := scalarFloat(scalar)
		return scalarKey{dtype, math.Float64bits(v)}, tensors.FromScalar(v)
	case dtypes.Int8:
		v := scalarInt(scalar)
		return scalarKey{dtype, uint64(v)}, tensors.FromScalar(int8(v))
	case dtypes.Int16:
		v := scalarInt(scalar)
		return scalarKey{dtype, uint64(v)}, tensors.FromScalar(int16(v))
	case dtypes.Int32:
		v := scalarInt(scalar)
		return scalarKey{dtype, uint64(v)}, tensors.FromScalar(int32(v))
	case dtypes.Int64:
		v := scalarInt(scalar)
		return scalarKey{dtype, uint64(v)}, tensors.FromScalar(v)
	case dtypes.Uint8:
		v := scalarInt(scalar)
		return scalarKey{dtype, uint64(v)}, tensors.FromScalar(uint8(v))
	case dtypes.Uint16:
		v := scalarInt(scalar)
		return scalarKey{dtype, uint64(v)}, tensors.FromScalar(uint16(v))
	case dtypes.Uint32:
		v := scalarInt(scalar)
		return scalarKey{dtype, uint64(v)}, tensors.FromScalar(uint32(v))
	case dtypes.Uint64:
		v := scalarInt(scalar)
		return scalarKey{dtype, uint64(v)}, tensors.FromScalar(uint64(v))
	}
	panic(&Error{Kind: TypePromotionError, Detail: fmt.Sprintf("cannot materialize scalar %s as %s", scalar, dtype)})
}

// scalarFloat reads the scalar in the floating domain.
func scalarFloat(scalar *fx.Scalar) float64 {
	switch {
	case scalar.DType == dtypes.Bool:
		if scalar.BoolValue {
			return 1
		}
		return 0
	case scalar.DType.IsFloat():
		return scalar.FloatValue
	default:
		return float64(scalar.IntValue)
	}
}

// scalarInt reads the scalar in the integer domain.
func scalarInt(scalar *fx.Scalar) int64 {
	switch {
	case scalar.DType == dtypes.Bool:
		if scalar.BoolValue {
			return 1
		}
		return 0
	case scalar.DType.IsFloat():
		return int64(scalar.FloatValue)
	default:
		return scalar.IntValue
	}
}
