package conversion

import (
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/jiwoong-choi/TensorRT/engine"
	"github.com/jiwoong-choi/TensorRT/fx"
)

// This file implements the binary elementwise families. The engine's
// ElementWise primitive requires operands of the same dtype and rank, so each
// converter emits the Casts and rank-aligning Reshapes demanded by the source
// IR's implicit broadcasting and promotion rules before the ElementWise
// instruction itself.

func init() {
	// Arithmetic and comparison operators: standard ranked promotion; the
	// comparisons pin the output dtype to Bool.
	for _, entry := range []struct {
		op         string
		engine     engine.ElementWiseOp
		comparison bool
	}{
		{"aten.add", engine.OpSum, false},
		{"aten.sub", engine.OpSub, false},
		{"aten.mul", engine.OpProd, false},
		{"aten.div", engine.OpDiv, false},
		{"aten.minimum", engine.OpMin, false},
		{"aten.maximum", engine.OpMax, false},
		{"aten.eq", engine.OpEqual, true},
		{"aten.gt", engine.OpGreater, true},
		{"aten.lt", engine.OpLess, true},
	} {
		op, comparison := entry.engine, entry.comparison
		registerConverter(fx.Key(entry.op, "Tensor"), 2, 2, func(ctx *Context, node *fx.Node) []*TensorValue {
			lhs := tensorOperand(ctx, node, 0)
			rhs := tensorOperand(ctx, node, 1)
			if !comparison {
				rejectBooleanOperand(node, 0, lhs)
				rejectBooleanOperand(node, 1, rhs)
			}
			return convertElementWise(ctx, node, op, comparison, lhs, rhs)
		})
		registerConverter(fx.Key(entry.op, "Scalar"), 2, 2, func(ctx *Context, node *fx.Node) []*TensorValue {
			lhs := tensorOperand(ctx, node, 0)
			if !comparison {
				rejectBooleanOperand(node, 0, lhs)
			}
			scalar := scalarOperand(ctx, node, 1)
			rhs := ctx.scalarConstant(scalar, scalarDType(ctx, node, scalar, lhs.Range.DType))
			return convertElementWise(ctx, node, op, comparison, lhs, rhs)
		})
	}

	// Strictly boolean bitwise operators, with all three operand orderings.
	// Operands must be boolean-compatible; the output dtype is always Bool.
	for _, entry := range []struct {
		op     string
		engine engine.ElementWiseOp
	}{
		{"aten.bitwise_and", engine.OpAnd},
		{"aten.bitwise_or", engine.OpOr},
		{"aten.bitwise_xor", engine.OpXor},
	} {
		op := entry.engine
		registerConverter(fx.Key(entry.op, "Tensor"), 2, 2, func(ctx *Context, node *fx.Node) []*TensorValue {
			lhs := booleanTensorOperand(ctx, node, 0)
			rhs := booleanTensorOperand(ctx, node, 1)
			return convertElementWise(ctx, node, op, false, lhs, rhs)
		})
		registerConverter(fx.Key(entry.op, "Scalar"), 2, 2, func(ctx *Context, node *fx.Node) []*TensorValue {
			lhs := booleanTensorOperand(ctx, node, 0)
			rhs := booleanScalarOperand(ctx, node, 1)
			return convertElementWise(ctx, node, op, false, lhs, rhs)
		})
		registerConverter(fx.Key(entry.op, "Scalar_Tensor"), 2, 2, func(ctx *Context, node *fx.Node) []*TensorValue {
			lhs := booleanScalarOperand(ctx, node, 0)
			rhs := booleanTensorOperand(ctx, node, 1)
			return convertElementWise(ctx, node, op, false, lhs, rhs)
		})
	}
}

// scalarDType resolves the dtype a scalar operand is materialized with, next
// to a tensor operand of tensorDType: a floating literal against an integer
// or boolean tensor pulls the operation into Float32; any other literal
// adopts the tensor's dtype, so a scalar never widens the tensor operand.
func scalarDType(ctx *Context, node *fx.Node, scalar *fx.Scalar, tensorDType dtypes.DType) dtypes.DType {
	if !supportedDTypes[tensorDType] {
		raisef(TypePromotionError, node, "operand dtype %s is not supported", tensorDType)
	}
	if scalar.DType.IsFloat() && !tensorDType.IsFloat() {
		return dtypes.Float32
	}
	return tensorDType
}

// rejectBooleanOperand raises for the arithmetic operators, which have no
// defined semantics on Bool. The comparisons and the bitwise family accept
// boolean operands.
func rejectBooleanOperand(node *fx.Node, idx int, operand *TensorValue) {
	if operand.Range.DType == dtypes.Bool {
		raisef(TypePromotionError, node, "%s is not defined for boolean operands, but operand #%d is Bool",
			node.Key.Op, idx)
	}
}

// booleanTensorOperand resolves a tensor operand of a strictly boolean
// operator, validating boolean compatibility before promotion is considered.
func booleanTensorOperand(ctx *Context, node *fx.Node, idx int) *TensorValue {
	operand := tensorOperand(ctx, node, idx)
	if operand.Range.DType != dtypes.Bool {
		raisef(TypePromotionError, node, "%s is strictly boolean, but operand #%d has dtype %s",
			node.Key.Op, idx, operand.Range.DType)
	}
	return operand
}

// booleanScalarOperand materializes a boolean scalar operand of a strictly
// boolean operator.
func booleanScalarOperand(ctx *Context, node *fx.Node, idx int) *TensorValue {
	scalar := scalarOperand(ctx, node, idx)
	if scalar.DType != dtypes.Bool {
		raisef(TypePromotionError, node, "%s is strictly boolean, but operand #%d is the non-boolean scalar %s",
			node.Key.Op, idx, scalar)
	}
	return ctx.scalarConstant(scalar, dtypes.Bool)
}

// convertElementWise emits one binary elementwise instruction, applying
// promotion, rank alignment and range broadcasting.
func convertElementWise(ctx *Context, node *fx.Node, op engine.ElementWiseOp, comparison bool, lhs, rhs *TensorValue) []*TensorValue {
	promoted := promoteDTypes(lhs.Range.DType, rhs.Range.DType)
	if promoted == dtypes.InvalidDType {
		raisef(TypePromotionError, node, "cannot combine operand dtypes %s and %s",
			lhs.Range.DType, rhs.Range.DType)
	}

	// The result shape must be valid at every point of the declared range.
	outRange := ctx.broadcastRanges(lhs.Range, rhs.Range).WithDType(promoted)

	lhsT := alignOperand(ctx, lhs, promoted, outRange.Rank())
	rhsT := alignOperand(ctx, rhs, promoted, outRange.Rank())
	out := ctx.network.AddElementWise(op, lhsT, rhsT)

	if comparison {
		outRange = outRange.WithDType(dtypes.Bool)
	}
	return []*TensorValue{{Range: outRange, T: out}}
}

// alignOperand casts the operand to the promoted dtype and left-pads its rank
// with size-1 axes up to the result rank, emitting instructions only when
// needed.
func alignOperand(ctx *Context, operand *TensorValue, dtype dtypes.DType, rank int) *engine.Tensor {
	t := operand.T
	if operand.Range.DType != dtype {
		t = ctx.network.AddCast(t, dtype)
	}
	if t.Rank() < rank {
		padded := operand.Range.padToRank(rank)
		t = ctx.network.AddReshape(t, padded.EngineDims())
	}
	return t
}
