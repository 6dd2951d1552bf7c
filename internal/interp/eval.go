package interp

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/jiwoong-choi/TensorRT/engine"
	"github.com/pkg/errors"
)

// fromTensor copies a tensors.Tensor into an evaluation buffer.
func fromTensor(t *tensors.Tensor) (*buffer, error) {
	buf := &buffer{dims: append([]int(nil), t.Shape().Dimensions...)}
	switch t.DType() {
	case dtypes.Bool:
		buf.dtype = dtypes.Bool
		tensors.ConstFlatData(t, func(flat []bool) {
			buf.bools = append([]bool(nil), flat...)
		})
	case dtypes.Int32:
		buf.dtype = dtypes.Int64
		tensors.ConstFlatData(t, func(flat []int32) {
			buf.ints = make([]int64, len(flat))
			for ii, v := range flat {
				buf.ints[ii] = int64(v)
			}
		})
	case dtypes.Int64:
		buf.dtype = dtypes.Int64
		tensors.ConstFlatData(t, func(flat []int64) {
			buf.ints = append([]int64(nil), flat...)
		})
	case dtypes.Float32:
		buf.dtype = dtypes.Float32
		tensors.ConstFlatData(t, func(flat []float32) {
			buf.floats = append([]float32(nil), flat...)
		})
	case dtypes.Float64:
		buf.dtype = dtypes.Float32
		tensors.ConstFlatData(t, func(flat []float64) {
			buf.floats = make([]float32, len(flat))
			for ii, v := range flat {
				buf.floats[ii] = float32(v)
			}
		})
	default:
		return nil, errors.Errorf("interp does not support dtype %s", t.DType())
	}
	return buf, nil
}

// toTensor materializes a buffer back into a tensors.Tensor. Scalars are
// returned with rank 0.
func toTensor(buf *buffer) (*tensors.Tensor, error) {
	switch buf.dtype {
	case dtypes.Bool:
		if len(buf.dims) == 0 {
			return tensors.FromScalar(buf.bools[0]), nil
		}
		return tensors.FromFlatDataAndDimensions(buf.bools, buf.dims...), nil
	case dtypes.Int64:
		if len(buf.dims) == 0 {
			return tensors.FromScalar(buf.ints[0]), nil
		}
		return tensors.FromFlatDataAndDimensions(buf.ints, buf.dims...), nil
	case dtypes.Float32:
		if len(buf.dims) == 0 {
			return tensors.FromScalar(buf.floats[0]), nil
		}
		return tensors.FromFlatDataAndDimensions(buf.floats, buf.dims...), nil
	}
	return nil, errors.Errorf("cannot materialize buffer of dtype %s", buf.dtype)
}

// evalCast converts between the three evaluation domains.
func evalCast(in *buffer, to dtypes.DType) (*buffer, error) {
	out := &buffer{dims: in.dims}
	size := in.size()
	switch {
	case to == dtypes.Bool:
		out.dtype = dtypes.Bool
		out.bools = make([]bool, size)
		for ii := 0; ii < size; ii++ {
			switch in.dtype {
			case dtypes.Bool:
				out.bools[ii] = in.bools[ii]
			case dtypes.Int64:
				out.bools[ii] = in.ints[ii] != 0
			default:
				out.bools[ii] = in.floats[ii] != 0
			}
		}
	case to.IsFloat():
		out.dtype = dtypes.Float32
		out.floats = make([]float32, size)
		for ii := 0; ii < size; ii++ {
			switch in.dtype {
			case dtypes.Bool:
				if in.bools[ii] {
					out.floats[ii] = 1
				}
			case dtypes.Int64:
				out.floats[ii] = float32(in.ints[ii])
			default:
				out.floats[ii] = in.floats[ii]
			}
		}
	case to.IsInt():
		out.dtype = dtypes.Int64
		out.ints = make([]int64, size)
		for ii := 0; ii < size; ii++ {
			switch in.dtype {
			case dtypes.Bool:
				if in.bools[ii] {
					out.ints[ii] = 1
				}
			case dtypes.Int64:
				out.ints[ii] = in.ints[ii]
			default:
				out.ints[ii] = int64(in.floats[ii])
			}
		}
	default:
		return nil, errors.Errorf("cast to unsupported dtype %s", to)
	}
	return out, nil
}

func evalUnary(op engine.UnaryOp, in *buffer) (*buffer, error) {
	size := in.size()
	out := &buffer{dtype: in.dtype, dims: in.dims}
	switch in.dtype {
	case dtypes.Bool:
		if op != engine.OpNot {
			return nil, errors.Errorf("unary %s on boolean buffer", op)
		}
		out.bools = make([]bool, size)
		for ii, v := range in.bools {
			out.bools[ii] = !v
		}
	case dtypes.Int64:
		out.ints = make([]int64, size)
		for ii, v := range in.ints {
			switch op {
			case engine.OpAbs:
				if v < 0 {
					v = -v
				}
				out.ints[ii] = v
			case engine.OpNeg:
				out.ints[ii] = -v
			default:
				return nil, errors.Errorf("unary %s on integer buffer", op)
			}
		}
	case dtypes.Float32:
		out.floats = make([]float32, size)
		for ii, v := range in.floats {
			var r float32
			switch op {
			case engine.OpExp:
				r = math32.Exp(v)
			case engine.OpLog:
				r = math32.Log(v)
			case engine.OpSqrt:
				r = math32.Sqrt(v)
			case engine.OpRecip:
				r = 1 / v
			case engine.OpAbs:
				r = math32.Abs(v)
			case engine.OpNeg:
				r = -v
			case engine.OpSin:
				r = math32.Sin(v)
			case engine.OpCos:
				r = math32.Cos(v)
			case engine.OpAsinh:
				r = math32.Asinh(v)
			case engine.OpAcosh:
				r = math32.Acosh(v)
			case engine.OpAtanh:
				r = math32.Atanh(v)
			case engine.OpCeil:
				r = math32.Ceil(v)
			case engine.OpFloor:
				r = math32.Floor(v)
			default:
				return nil, errors.Errorf("unary %s on float buffer", op)
			}
			out.floats[ii] = r
		}
	}
	return out, nil
}

// broadcastIndex maps a flat output position to the flat position within an
// operand whose size-1 axes broadcast.
func broadcastIndex(outDims, operandDims []int, flat int) int {
	idx := 0
	rem := flat
	operandStrides := make([]int, len(operandDims))
	s := 1
	for axis := len(operandDims) - 1; axis >= 0; axis-- {
		operandStrides[axis] = s
		s *= operandDims[axis]
	}
	for axis := len(outDims) - 1; axis >= 0; axis-- {
		coord := rem % outDims[axis]
		rem /= outDims[axis]
		if operandDims[axis] != 1 {
			idx += coord * operandStrides[axis]
		}
	}
	return idx
}

func evalElementWise(op engine.ElementWiseOp, lhs, rhs *buffer) (*buffer, error) {
	if len(lhs.dims) != len(rhs.dims) {
		return nil, errors.Errorf("elementwise %s operands have ranks %d and %d", op, len(lhs.dims), len(rhs.dims))
	}
	outDims := make([]int, len(lhs.dims))
	for axis := range outDims {
		a, b := lhs.dims[axis], rhs.dims[axis]
		switch {
		case a == b:
			outDims[axis] = a
		case a == 1:
			outDims[axis] = b
		case b == 1:
			outDims[axis] = a
		default:
			return nil, errors.Errorf("elementwise %s operands have incompatible axis #%d: %v vs %v", op, axis, lhs.dims, rhs.dims)
		}
	}
	out := &buffer{dims: outDims}
	size := out.size()

	switch op {
	case engine.OpAnd, engine.OpOr, engine.OpXor:
		if lhs.dtype != dtypes.Bool || rhs.dtype != dtypes.Bool {
			return nil, errors.Errorf("elementwise %s requires boolean operands", op)
		}
		out.dtype = dtypes.Bool
		out.bools = make([]bool, size)
		for flat := 0; flat < size; flat++ {
			a := lhs.bools[broadcastIndex(outDims, lhs.dims, flat)]
			b := rhs.bools[broadcastIndex(outDims, rhs.dims, flat)]
			switch op {
			case engine.OpAnd:
				out.bools[flat] = a && b
			case engine.OpOr:
				out.bools[flat] = a || b
			case engine.OpXor:
				out.bools[flat] = a != b
			}
		}
		return out, nil
	}

	if lhs.dtype != rhs.dtype {
		return nil, errors.Errorf("elementwise %s operands have dtypes %s and %s", op, lhs.dtype, rhs.dtype)
	}
	comparison := op == engine.OpEqual || op == engine.OpGreater || op == engine.OpLess
	if comparison {
		out.dtype = dtypes.Bool
		out.bools = make([]bool, size)
	} else {
		out.dtype = lhs.dtype
	}

	switch lhs.dtype {
	case dtypes.Bool:
		for flat := 0; flat < size; flat++ {
			a := lhs.bools[broadcastIndex(outDims, lhs.dims, flat)]
			b := rhs.bools[broadcastIndex(outDims, rhs.dims, flat)]
			switch op {
			case engine.OpEqual:
				out.bools[flat] = a == b
			case engine.OpGreater:
				out.bools[flat] = a && !b
			case engine.OpLess:
				out.bools[flat] = !a && b
			default:
				return nil, errors.Errorf("elementwise %s on Bool buffers", op)
			}
		}
	case dtypes.Int64:
		if !comparison {
			out.ints = make([]int64, size)
		}
		for flat := 0; flat < size; flat++ {
			a := lhs.ints[broadcastIndex(outDims, lhs.dims, flat)]
			b := rhs.ints[broadcastIndex(outDims, rhs.dims, flat)]
			switch op {
			case engine.OpSum:
				out.ints[flat] = a + b
			case engine.OpSub:
				out.ints[flat] = a - b
			case engine.OpProd:
				out.ints[flat] = a * b
			case engine.OpDiv:
				out.ints[flat] = a / b
			case engine.OpMin:
				out.ints[flat] = min(a, b)
			case engine.OpMax:
				out.ints[flat] = max(a, b)
			case engine.OpEqual:
				out.bools[flat] = a == b
			case engine.OpGreater:
				out.bools[flat] = a > b
			case engine.OpLess:
				out.bools[flat] = a < b
			default:
				return nil, errors.Errorf("elementwise %s on integer buffers", op)
			}
		}
	case dtypes.Float32:
		if !comparison {
			out.floats = make([]float32, size)
		}
		for flat := 0; flat < size; flat++ {
			a := lhs.floats[broadcastIndex(outDims, lhs.dims, flat)]
			b := rhs.floats[broadcastIndex(outDims, rhs.dims, flat)]
			switch op {
			case engine.OpSum:
				out.floats[flat] = a + b
			case engine.OpSub:
				out.floats[flat] = a - b
			case engine.OpProd:
				out.floats[flat] = a * b
			case engine.OpDiv:
				out.floats[flat] = a / b
			case engine.OpPow:
				out.floats[flat] = math32.Pow(a, b)
			case engine.OpMin:
				out.floats[flat] = math32.Min(a, b)
			case engine.OpMax:
				out.floats[flat] = math32.Max(a, b)
			case engine.OpEqual:
				out.bools[flat] = a == b
			case engine.OpGreater:
				out.bools[flat] = a > b
			case engine.OpLess:
				out.bools[flat] = a < b
			default:
				return nil, errors.Errorf("elementwise %s on float buffers", op)
			}
		}
	default:
		return nil, errors.Errorf("elementwise %s on %s buffers", op, lhs.dtype)
	}
	return out, nil
}

func evalSlice(in *buffer, starts, sizes, strides []int) (*buffer, error) {
	rank := len(in.dims)
	outDims := make([]int, rank)
	for axis := range outDims {
		size := sizes[axis]
		if size == engine.DynamicDim {
			// Resolve against the actual input size.
			size = (in.dims[axis] - starts[axis] + strides[axis] - 1) / strides[axis]
		}
		if size < 1 || starts[axis]+(size-1)*strides[axis] >= in.dims[axis] {
			return nil, errors.Errorf("slice out of bounds at axis #%d: starts=%v sizes=%v strides=%v dims=%v",
				axis, starts, sizes, strides, in.dims)
		}
		outDims[axis] = size
	}
	out := &buffer{dtype: in.dtype, dims: outDims}
	size := out.size()
	switch in.dtype {
	case dtypes.Bool:
		out.bools = make([]bool, size)
	case dtypes.Int64:
		out.ints = make([]int64, size)
	case dtypes.Float32:
		out.floats = make([]float32, size)
	}

	inStrides := make([]int, rank)
	s := 1
	for axis := rank - 1; axis >= 0; axis-- {
		inStrides[axis] = s
		s *= in.dims[axis]
	}
	for flat := 0; flat < size; flat++ {
		rem := flat
		inFlat := 0
		for axis := rank - 1; axis >= 0; axis-- {
			coord := rem % outDims[axis]
			rem /= outDims[axis]
			inFlat += (starts[axis] + coord*strides[axis]) * inStrides[axis]
		}
		switch in.dtype {
		case dtypes.Bool:
			out.bools[flat] = in.bools[inFlat]
		case dtypes.Int64:
			out.ints[flat] = in.ints[inFlat]
		case dtypes.Float32:
			out.floats[flat] = in.floats[inFlat]
		}
	}
	return out, nil
}
