package conversion

import (
	"github.com/pkg/errors"
)

// This file implements the elementwise broadcasting rule of the source IR:
// the shorter operand is left-padded with size-1 axes up to the result rank
// max(rankA, rankB), then per axis the result size is the non-1 size if
// exactly one side is 1, the shared size if both agree, and an error if both
// are >1 and differ. For ranged shapes the rule must hold at min, opt and
// max independently.

// broadcastDims applies the static broadcasting rule to two already
// rank-aligned dimension vectors.
func broadcastDims(bounds ...[]int) ([]int, error) {
	lhs, rhs := bounds[0], bounds[1]
	out := make([]int, len(lhs))
	for axis := range out {
		a, b := lhs[axis], rhs[axis]
		switch {
		case a == b:
			out[axis] = a
		case a == 1:
			out[axis] = b
		case b == 1:
			out[axis] = a
		default:
			return nil, errors.Errorf("axis #%d has sizes %d and %d, which cannot be broadcast", axis, a, b)
		}
	}
	return out, nil
}

// broadcastRanges computes the broadcast result range of two operands,
// rank-padding the shorter one with implicit size-1 axes at every point of
// the range. The returned range carries the lhs dtype; promotion is handled
// separately.
//
// It raises BroadcastError (naming both shapes and the axis) if the operands
// are incompatible at any of the min, opt or max bounds.
func (ctx *Context) broadcastRanges(lhs, rhs ShapeRange) ShapeRange {
	rank := max(lhs.Rank(), rhs.Rank())
	lhsPadded := lhs.padToRank(rank)
	rhsPadded := rhs.padToRank(rank)
	minDims, optDims, maxDims, err := propagate(broadcastDims, lhsPadded, rhsPadded)
	if err != nil {
		raisef(BroadcastError, ctx.currentNode, "shapes %s and %s: %v", lhs, rhs, err)
	}
	return ShapeRange{DType: lhs.DType, Min: minDims, Opt: optDims, Max: maxDims}
}
