package conversion

import (
	"github.com/jiwoong-choi/TensorRT/fx"
)

func init() {
	registerConverter(fx.Key("aten.view", "default"), 1, 1, convertView)
	registerConverter(fx.Key("aten.clone", "default"), 1, 1, convertClone)
}

// convertView reshapes the operand to the target dims given by the "shape"
// attribute, where one entry may be -1 to be inferred from the operand size.
//
// The output shape of a view over a ranged operand is not a per-axis function
// of the input bounds (the flattening mixes axes), so ranged operands are
// rejected with UnsupportedDynamicShape: callers must supply static shapes
// for view nodes.
func convertView(ctx *Context, node *fx.Node) []*TensorValue {
	operand := tensorOperand(ctx, node, 0)
	dims, found := node.IntsAttr("shape")
	if !found {
		raisef(InvalidAttribute, node, "missing required attribute %q", "shape")
	}

	static, ok := operand.Range.Collapse()
	if !ok {
		raisef(UnsupportedDynamicShape, node, "view of ranged operand %s: the target shape cannot be propagated per bound", operand.Range)
	}

	// Resolve at most one -1 entry from the operand size.
	size := static.Size()
	inferAxis := -1
	known := 1
	outDims := append([]int(nil), dims...)
	for axis, dim := range outDims {
		switch {
		case dim == -1:
			if inferAxis >= 0 {
				raisef(InvalidAttribute, node, "target shape %v has more than one -1 entry", dims)
			}
			inferAxis = axis
		case dim < 1:
			raisef(InvalidAttribute, node, "target shape %v has invalid entry at axis #%d", dims, axis)
		default:
			known *= dim
		}
	}
	if inferAxis >= 0 {
		if known == 0 || size%known != 0 {
			raisef(InvalidAttribute, node, "cannot infer -1 in target shape %v for operand of size %d", dims, size)
		}
		outDims[inferAxis] = size / known
	} else if known != size {
		raisef(InvalidAttribute, node, "target shape %v has size %d, operand %s has size %d", dims, known, operand.Range, size)
	}

	out := ctx.network.AddReshape(operand.T, outDims)
	outRange := ShapeRange{
		DType: operand.Range.DType,
		Min:   outDims,
		Opt:   append([]int(nil), outDims...),
		Max:   append([]int(nil), outDims...),
	}
	return []*TensorValue{{Range: outRange, T: out}}
}

// convertClone is a no-op at the engine level: the produced value aliases the
// operand tensor.
func convertClone(ctx *Context, node *fx.Node) []*TensorValue {
	operand := tensorOperand(ctx, node, 0)
	return []*TensorValue{{Range: operand.Range, T: operand.T}}
}
