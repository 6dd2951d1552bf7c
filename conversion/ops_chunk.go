package conversion

import (
	"github.com/jiwoong-choi/TensorRT/fx"
)

// This file implements the chunk/split decomposition: the engine has no
// multi-output partition primitive, so one chunk node is lowered into one
// Slice instruction per non-empty piece.

func init() {
	registerConverter(fx.Key("aten.chunk", "default"), 1, 1, convertChunk)
}

// mustIntAttr returns the named integer attribute, raising InvalidAttribute
// when it is missing.
func mustIntAttr(node *fx.Node, name string) int {
	value, found := node.IntAttr(name)
	if !found {
		raisef(InvalidAttribute, node, "missing required attribute %q", name)
	}
	return value
}

// intAttrOr returns the named integer attribute or defaultValue when absent.
func intAttrOr(node *fx.Node, name string, defaultValue int) int {
	value, found := node.IntAttr(name)
	if !found {
		return defaultValue
	}
	return value
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// convertChunk partitions one axis into up to `chunks` contiguous pieces.
//
// With N the axis size and K the requested count, chunkSize = ceil(N/K) and
// pieces start at 0, chunkSize, 2*chunkSize, ...; boundaries at or beyond N
// are elided, so fewer than K pieces may be produced (the node must declare
// exactly the produced count as outputs). The last piece may be smaller than
// chunkSize but is never empty.
//
// For ranged shapes chunkSize and the piece count come from the opt bound,
// and every piece's min/max sizes are recomputed per boundary with the same
// arithmetic. If the range admits a different non-empty piece count at min or
// max, the partition is not well-defined over the whole range and the
// conversion fails with AmbiguousDynamicChunkCount.
func convertChunk(ctx *Context, node *fx.Node) []*TensorValue {
	operand := tensorOperand(ctx, node, 0)
	r := operand.Range
	rank := r.Rank()

	chunks := mustIntAttr(node, "chunks")
	if chunks < 1 {
		raisef(InvalidAttribute, node, "chunks must be positive, got %d", chunks)
	}
	dim := intAttrOr(node, "dim", 0)
	if dim < -rank || dim >= rank {
		raisef(InvalidAttribute, node, "dim %d out of range for operand of rank %d", dim, rank)
	}
	if dim < 0 {
		dim += rank
	}

	nMin, nOpt, nMax := r.Min[dim], r.Opt[dim], r.Max[dim]
	if nOpt < 1 {
		raisef(InvalidAttribute, node, "cannot chunk axis #%d with opt size %d", dim, nOpt)
	}
	chunkSize := ceilDiv(nOpt, chunks)
	numPieces := ceilDiv(nOpt, chunkSize)

	// The piece count must agree at every point of the range.
	if nMin < 1 || ceilDiv(nMin, chunkSize) != numPieces || ceilDiv(nMax, chunkSize) != numPieces {
		raisef(AmbiguousDynamicChunkCount, node,
			"axis #%d ranges over [%d, %d] with chunkSize %d: the number of non-empty pieces differs across the range (%d at opt size %d)",
			dim, nMin, nMax, chunkSize, numPieces, nOpt)
	}
	if len(node.Outputs) != numPieces {
		raisef(InvalidAttribute, node, "chunk produces %d pieces (N=%d, chunks=%d), but the node declares %d outputs",
			numPieces, nOpt, chunks, len(node.Outputs))
	}

	results := make([]*TensorValue, 0, numPieces)
	for piece := 0; piece < numPieces; piece++ {
		start := piece * chunkSize
		pieceRange := ShapeRange{
			DType: r.DType,
			Min:   append([]int(nil), r.Min...),
			Opt:   append([]int(nil), r.Opt...),
			Max:   append([]int(nil), r.Max...),
		}
		pieceRange.Min[dim] = min(chunkSize, nMin-start)
		pieceRange.Opt[dim] = min(chunkSize, nOpt-start)
		pieceRange.Max[dim] = min(chunkSize, nMax-start)

		starts := make([]int, rank)
		strides := make([]int, rank)
		for axis := range strides {
			strides[axis] = 1
		}
		starts[dim] = start
		out := ctx.network.AddSlice(operand.T, starts, pieceRange.EngineDims(), strides)
		results = append(results, &TensorValue{Range: pieceRange, T: out})
	}
	return results
}
