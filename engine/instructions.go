package engine

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
)

// Instruction is one primitive operation of the Network.
type Instruction interface {
	// Out returns the tensor this instruction produces.
	Out() *Tensor

	// String renders a one-line listing of the instruction.
	String() string
}

// ElementWiseOp enumerates the binary elementwise primitives.
type ElementWiseOp int

const (
	OpSum ElementWiseOp = iota
	OpSub
	OpProd
	OpDiv
	OpPow
	OpMin
	OpMax
	OpAnd
	OpOr
	OpXor
	OpEqual
	OpGreater
	OpLess
)

// UnaryOp enumerates the unary elementwise primitives.
type UnaryOp int

const (
	OpExp UnaryOp = iota
	OpLog
	OpSqrt
	OpRecip
	OpAbs
	OpNeg
	OpSin
	OpCos
	OpAsinh
	OpAcosh
	OpAtanh
	OpCeil
	OpFloor
	OpNot
)

// Constant materializes a fixed tensor value.
type Constant struct {
	Value *tensors.Tensor
	out   *Tensor
}

func (c *Constant) Out() *Tensor { return c.out }

func (c *Constant) String() string {
	return fmt.Sprintf("%s = Constant(%s)", c.out, c.Value.Shape())
}

// ElementWise combines two same-rank tensors, broadcasting size-1 axes.
type ElementWise struct {
	Op       ElementWiseOp
	LHS, RHS *Tensor
	out      *Tensor
}

func (e *ElementWise) Out() *Tensor { return e.out }

func (e *ElementWise) String() string {
	return fmt.Sprintf("%s = ElementWise[%s](%s, %s)", e.out, e.Op, e.LHS, e.RHS)
}

// Unary applies one unary primitive elementwise.
type Unary struct {
	Op UnaryOp
	In *Tensor

	out *Tensor
}

func (u *Unary) Out() *Tensor { return u.out }

func (u *Unary) String() string {
	return fmt.Sprintf("%s = Unary[%s](%s)", u.out, u.Op, u.In)
}

// Cast converts the element dtype, keeping the shape.
type Cast struct {
	In  *Tensor
	out *Tensor
}

func (c *Cast) Out() *Tensor { return c.out }

func (c *Cast) String() string {
	return fmt.Sprintf("%s = Cast[%s](%s)", c.out, c.out.dtype, c.In)
}

// Reshape reinterprets the tensor with new dims of the same total size.
type Reshape struct {
	In  *Tensor
	out *Tensor
}

func (r *Reshape) Out() *Tensor { return r.out }

func (r *Reshape) String() string {
	return fmt.Sprintf("%s = Reshape%v(%s)", r.out, r.out.dims, r.In)
}

// Slice extracts a contiguous (strided) window of the input.
type Slice struct {
	In      *Tensor
	Starts  []int
	Sizes   []int // Sizes may contain DynamicDim on dynamic axes.
	Strides []int
	out     *Tensor
}

func (s *Slice) Out() *Tensor { return s.out }

func (s *Slice) String() string {
	return fmt.Sprintf("%s = Slice[starts=%v, sizes=%v, strides=%v](%s)", s.out, s.Starts, s.Sizes, s.Strides, s.In)
}

// elementWiseDims combines the dims of two same-rank operands: matching sizes
// pass through, a size-1 axis broadcasts against the other side, and a
// dynamic axis stays dynamic.
func elementWiseDims(op ElementWiseOp, lhs, rhs *Tensor) []int {
	dims := make([]int, lhs.Rank())
	for axis := range dims {
		a, b := lhs.dims[axis], rhs.dims[axis]
		switch {
		case a == b:
			dims[axis] = a
		case a == 1:
			dims[axis] = b
		case b == 1:
			dims[axis] = a
		case a == DynamicDim || b == DynamicDim:
			dims[axis] = DynamicDim
		default:
			exceptions.Panicf("engine: ElementWise[%s] operands %s and %s have incompatible axis #%d", op, lhs, rhs, axis)
		}
	}
	return dims
}

// AddElementWise emits a binary elementwise instruction. Operands must share
// dtype and rank; the boolean ops (OpAnd, OpOr, OpXor) require Bool operands,
// the arithmetic ops reject them, and the comparison ops produce Bool output.
func (n *Network) AddElementWise(op ElementWiseOp, lhs, rhs *Tensor) *Tensor {
	if lhs.dtype != rhs.dtype {
		exceptions.Panicf("engine: ElementWise[%s] operands must share dtype, got %s and %s", op, lhs, rhs)
	}
	if lhs.Rank() != rhs.Rank() {
		exceptions.Panicf("engine: ElementWise[%s] operands must share rank, got %s and %s -- emit a Reshape to align ranks first", op, lhs, rhs)
	}
	switch op {
	case OpAnd, OpOr, OpXor:
		if lhs.dtype != dtypes.Bool {
			exceptions.Panicf("engine: ElementWise[%s] requires Bool operands, got %s", op, lhs)
		}
	case OpSum, OpSub, OpProd, OpDiv, OpPow, OpMin, OpMax:
		if lhs.dtype == dtypes.Bool {
			exceptions.Panicf("engine: ElementWise[%s] is not defined for Bool operands, got %s", op, lhs)
		}
	}
	outDType := lhs.dtype
	switch op {
	case OpEqual, OpGreater, OpLess:
		outDType = dtypes.Bool
	}
	inst := &ElementWise{Op: op, LHS: lhs, RHS: rhs}
	inst.out = n.newTensor("", outDType, elementWiseDims(op, lhs, rhs), inst)
	n.emit(inst)
	return inst.out
}

// AddUnary emits a unary elementwise instruction. The float-domain primitives
// require a float operand; the caller emits a Cast first for integer inputs.
func (n *Network) AddUnary(op UnaryOp, in *Tensor) *Tensor {
	outDType := in.dtype
	switch op {
	case OpExp, OpLog, OpSqrt, OpRecip, OpSin, OpCos, OpAsinh, OpAcosh, OpAtanh, OpCeil, OpFloor:
		if !in.dtype.IsFloat() {
			exceptions.Panicf("engine: Unary[%s] requires a float operand, got %s -- emit a Cast first", op, in)
		}
	case OpAbs, OpNeg:
		if in.dtype == dtypes.Bool {
			exceptions.Panicf("engine: Unary[%s] is not defined for Bool operand %s", op, in)
		}
	case OpNot:
		if in.dtype != dtypes.Bool {
			exceptions.Panicf("engine: Unary[%s] requires a Bool operand, got %s", op, in)
		}
	default:
		exceptions.Panicf("engine: unknown UnaryOp %d", op)
	}
	inst := &Unary{Op: op, In: in}
	inst.out = n.newTensor("", outDType, in.dims, inst)
	n.emit(inst)
	return inst.out
}

// AddCast emits a dtype conversion.
func (n *Network) AddCast(in *Tensor, dtype dtypes.DType) *Tensor {
	if dtype == dtypes.InvalidDType {
		exceptions.Panicf("engine: Cast of %s to invalid dtype", in)
	}
	inst := &Cast{In: in}
	inst.out = n.newTensor("", dtype, in.dims, inst)
	n.emit(inst)
	return inst.out
}

// AddReshape emits a reshape to dims. Dynamic axes of the input carry over as
// DynamicDim entries in dims; for fully static shapes the total size must be
// preserved.
func (n *Network) AddReshape(in *Tensor, dims []int) *Tensor {
	numDynamic := 0
	for _, dim := range dims {
		if dim == DynamicDim {
			numDynamic++
		} else if dim < 0 {
			exceptions.Panicf("engine: Reshape of %s to invalid dims %v", in, dims)
		}
	}
	numInDynamic := 0
	for _, dim := range in.dims {
		if dim == DynamicDim {
			numInDynamic++
		}
	}
	if numDynamic != numInDynamic {
		exceptions.Panicf("engine: Reshape of %s to %v must keep the dynamic axes", in, dims)
	}
	if numDynamic == 0 && staticSize(dims) != staticSize(in.dims) {
		exceptions.Panicf("engine: Reshape of %s to %v changes the total size", in, dims)
	}
	inst := &Reshape{In: in}
	inst.out = n.newTensor("", in.dtype, dims, inst)
	n.emit(inst)
	return inst.out
}

// AddSlice emits a strided slice. starts/sizes/strides must have one entry
// per input axis; a size of DynamicDim marks an axis whose extracted size is
// only bounded by the profile.
func (n *Network) AddSlice(in *Tensor, starts, sizes, strides []int) *Tensor {
	rank := in.Rank()
	if len(starts) != rank || len(sizes) != rank || len(strides) != rank {
		exceptions.Panicf("engine: Slice of %s requires starts/sizes/strides of rank %d, got %v/%v/%v",
			in, rank, starts, sizes, strides)
	}
	for axis := range starts {
		if starts[axis] < 0 || strides[axis] < 1 {
			exceptions.Panicf("engine: Slice of %s has invalid starts/strides %v/%v at axis #%d", in, starts, strides, axis)
		}
		if sizes[axis] != DynamicDim {
			if sizes[axis] < 1 {
				exceptions.Panicf("engine: Slice of %s has non-positive size at axis #%d: %v", in, axis, sizes)
			}
			if dim := in.dims[axis]; dim != DynamicDim && starts[axis]+(sizes[axis]-1)*strides[axis] >= dim {
				exceptions.Panicf("engine: Slice of %s out of bounds at axis #%d: starts=%v sizes=%v strides=%v",
					in, axis, starts, sizes, strides)
			}
		}
	}
	inst := &Slice{
		In:      in,
		Starts:  append([]int(nil), starts...),
		Sizes:   append([]int(nil), sizes...),
		Strides: append([]int(nil), strides...),
	}
	inst.out = n.newTensor("", in.dtype, sizes, inst)
	n.emit(inst)
	return inst.out
}
