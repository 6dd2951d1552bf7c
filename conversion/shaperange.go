package conversion

import (
	"fmt"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/jiwoong-choi/TensorRT/fx"
	"github.com/pkg/errors"
)

// ShapeRange is the ranged Shape Descriptor: for every axis, the minimum,
// optimum and maximum size the lowered engine must support, plus the element
// dtype. A static shape is the degenerate range with Min == Opt == Max.
//
// Invariants, enforced by the constructors: Min, Opt and Max share the rank,
// and 0 <= min <= opt <= max on every axis.
type ShapeRange struct {
	DType dtypes.DType

	Min, Opt, Max []int
}

// NewShapeRange builds a ShapeRange, validating its invariants.
func NewShapeRange(dtype dtypes.DType, min, opt, max []int) (ShapeRange, error) {
	if dtype == dtypes.InvalidDType {
		return ShapeRange{}, errors.New("ShapeRange with invalid dtype")
	}
	if len(min) != len(opt) || len(opt) != len(max) {
		return ShapeRange{}, errors.Errorf("ShapeRange bounds must share the rank, got %d/%d/%d",
			len(min), len(opt), len(max))
	}
	for axis := range opt {
		if min[axis] < 0 || min[axis] > opt[axis] || opt[axis] > max[axis] {
			return ShapeRange{}, errors.Errorf("ShapeRange axis #%d requires 0 <= min <= opt <= max, got (%d, %d, %d)",
				axis, min[axis], opt[axis], max[axis])
		}
	}
	return ShapeRange{
		DType: dtype,
		Min:   append([]int(nil), min...),
		Opt:   append([]int(nil), opt...),
		Max:   append([]int(nil), max...),
	}, nil
}

// FromStatic builds the degenerate range of a static shape.
func FromStatic(shape shapes.Shape) ShapeRange {
	dims := shape.Dimensions
	return ShapeRange{
		DType: shape.DType,
		Min:   append([]int(nil), dims...),
		Opt:   append([]int(nil), dims...),
		Max:   append([]int(nil), dims...),
	}
}

// fromInputSpec converts an fx graph input spec; specs are validated at graph
// construction, so this cannot fail.
func fromInputSpec(spec *fx.InputSpec) ShapeRange {
	return ShapeRange{
		DType: spec.DType,
		Min:   append([]int(nil), spec.Min...),
		Opt:   append([]int(nil), spec.Opt...),
		Max:   append([]int(nil), spec.Max...),
	}
}

// Rank of the described tensors. Rank is fixed over the whole range.
func (r ShapeRange) Rank() int { return len(r.Opt) }

// IsStatic reports whether every axis admits exactly one size.
func (r ShapeRange) IsStatic() bool {
	for axis := range r.Opt {
		if r.Min[axis] != r.Opt[axis] || r.Opt[axis] != r.Max[axis] {
			return false
		}
	}
	return true
}

// Collapse reduces the range to a static shape when min == opt == max on
// every axis. ok is false if any axis is genuinely ranged.
func (r ShapeRange) Collapse() (shape shapes.Shape, ok bool) {
	if !r.IsStatic() {
		return shapes.Shape{}, false
	}
	shape.DType = r.DType
	shape.Dimensions = append([]int(nil), r.Opt...)
	return shape, true
}

// WithDType returns a copy of the range with another element dtype, keeping
// the bounds. Used when the only effect of an operator on the descriptor is
// type promotion.
func (r ShapeRange) WithDType(dtype dtypes.DType) ShapeRange {
	r2 := r
	r2.DType = dtype
	return r2
}

// EngineDims renders the range as engine dims: the concrete size on static
// axes and engine.DynamicDim (-1) on ranged ones.
func (r ShapeRange) EngineDims() []int {
	dims := make([]int, r.Rank())
	for axis := range dims {
		if r.Min[axis] == r.Max[axis] {
			dims[axis] = r.Opt[axis]
		} else {
			dims[axis] = -1
		}
	}
	return dims
}

// atBound returns the dimension vector at one bound of the range.
// bound is 0 for min, 1 for opt, 2 for max.
func (r ShapeRange) atBound(bound int) []int {
	switch bound {
	case 0:
		return r.Min
	case 1:
		return r.Opt
	default:
		return r.Max
	}
}

// padToRank returns a copy of the range rank-padded on the left with implicit
// size-1 axes (min=opt=max=1), per the broadcasting rule.
func (r ShapeRange) padToRank(rank int) ShapeRange {
	if r.Rank() >= rank {
		return r
	}
	pad := rank - r.Rank()
	padded := ShapeRange{
		DType: r.DType,
		Min:   make([]int, rank),
		Opt:   make([]int, rank),
		Max:   make([]int, rank),
	}
	for axis := 0; axis < pad; axis++ {
		padded.Min[axis], padded.Opt[axis], padded.Max[axis] = 1, 1, 1
	}
	copy(padded.Min[pad:], r.Min)
	copy(padded.Opt[pad:], r.Opt)
	copy(padded.Max[pad:], r.Max)
	return padded
}

// String implements fmt.Stringer: "(Float32)[2 3]" when static, otherwise
// "(Float32)[min=[1 1] opt=[2 3] max=[4 4]]".
func (r ShapeRange) String() string {
	if r.IsStatic() {
		var b strings.Builder
		fmt.Fprintf(&b, "(%s)[", r.DType)
		for axis, dim := range r.Opt {
			if axis > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", dim)
		}
		b.WriteByte(']')
		return b.String()
	}
	return fmt.Sprintf("(%s)[min=%v opt=%v max=%v]", r.DType, r.Min, r.Opt, r.Max)
}

// propagate derives an output range by applying the same shape arithmetic to
// the min, opt and max bounds independently: the single code path for static
// and ranged propagation. fn receives one dimension vector per operand and
// returns the output dimensions or an error (reported by the caller with the
// proper error kind).
func propagate(fn func(bounds ...[]int) ([]int, error), operands ...ShapeRange) (minDims, optDims, maxDims []int, err error) {
	out := make([][]int, 3)
	for bound := 0; bound < 3; bound++ {
		boundDims := make([][]int, len(operands))
		for ii, operand := range operands {
			boundDims[ii] = operand.atBound(bound)
		}
		out[bound], err = fn(boundDims...)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return out[0], out[1], out[2], nil
}
