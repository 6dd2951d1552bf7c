package conversion

import (
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/jiwoong-choi/TensorRT/engine"
	"github.com/jiwoong-choi/TensorRT/fx"
)

// This file implements the unary elementwise family. All of them preserve the
// operand shape range; they differ only in how the output dtype is resolved
// and whether a Cast must be emitted before the engine primitive.

// unaryDomain describes how a unary operator treats the operand dtype.
type unaryDomain int

const (
	// floatDomain: computed in floating point. Integer and boolean operands
	// are promoted (Cast) to Float32 before emission, so e.g. asinh of an
	// int32 tensor yields a Float32 tensor.
	floatDomain unaryDomain = iota

	// numericDomain: computed in the operand dtype; boolean operands are
	// rejected.
	numericDomain

	// roundingDomain: computed in floating point but an exact identity on
	// integers, where no instruction is emitted at all.
	roundingDomain

	// booleanDomain: computed on booleans; other dtypes are first Cast to
	// Bool. Output is pinned Bool.
	booleanDomain
)

func init() {
	for _, entry := range []struct {
		op     string
		engine engine.UnaryOp
		domain unaryDomain
	}{
		{"aten.exp", engine.OpExp, floatDomain},
		{"aten.log", engine.OpLog, floatDomain},
		{"aten.sqrt", engine.OpSqrt, floatDomain},
		{"aten.reciprocal", engine.OpRecip, floatDomain},
		{"aten.sin", engine.OpSin, floatDomain},
		{"aten.cos", engine.OpCos, floatDomain},
		{"aten.asinh", engine.OpAsinh, floatDomain},
		{"aten.acosh", engine.OpAcosh, floatDomain},
		{"aten.atanh", engine.OpAtanh, floatDomain},
		{"aten.abs", engine.OpAbs, numericDomain},
		{"aten.neg", engine.OpNeg, numericDomain},
		{"aten.ceil", engine.OpCeil, roundingDomain},
		{"aten.floor", engine.OpFloor, roundingDomain},
		{"aten.logical_not", engine.OpNot, booleanDomain},
	} {
		op, domain := entry.engine, entry.domain
		registerConverter(fx.Key(entry.op, "default"), 1, 1, func(ctx *Context, node *fx.Node) []*TensorValue {
			return convertUnary(ctx, node, op, domain)
		})
	}
}

// convertUnary lowers one unary elementwise node.
func convertUnary(ctx *Context, node *fx.Node, op engine.UnaryOp, domain unaryDomain) []*TensorValue {
	operand := tensorOperand(ctx, node, 0)
	operandDType := operand.Range.DType
	if !supportedDTypes[operandDType] {
		raisef(TypePromotionError, node, "operand dtype %s is not supported", operandDType)
	}

	t := operand.T
	var outDType dtypes.DType
	switch domain {
	case floatDomain:
		outDType = floatDomainDType(operandDType)
		if operandDType != outDType {
			t = ctx.network.AddCast(t, outDType)
		}
	case numericDomain:
		if operandDType == dtypes.Bool {
			raisef(TypePromotionError, node, "%s is not defined for boolean operands", node.Key.Op)
		}
		outDType = operandDType
	case roundingDomain:
		if operandDType == dtypes.Bool {
			raisef(TypePromotionError, node, "%s is not defined for boolean operands", node.Key.Op)
		}
		if !operandDType.IsFloat() {
			// Exact on integers: nothing to emit.
			return []*TensorValue{{Range: operand.Range, T: operand.T}}
		}
		outDType = operandDType
	case booleanDomain:
		outDType = dtypes.Bool
		if operandDType != dtypes.Bool {
			t = ctx.network.AddCast(t, dtypes.Bool)
		}
	}

	out := ctx.network.AddUnary(op, t)
	return []*TensorValue{{Range: operand.Range.WithDType(outDType), T: out}}
}
