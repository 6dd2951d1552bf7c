// Package interp is a reference evaluator for engine networks, used by tests
// to check the numerical semantics of lowerings against directly computed
// expectations. It executes at one concrete shape (the fed input shapes must
// be admissible under the network's profile).
//
// Element values are carried in three domains: booleans, int64 and float32
// (float math via github.com/chewxy/math32, the precision the engine is
// specialized for).
package interp

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/jiwoong-choi/TensorRT/engine"
	"github.com/pkg/errors"
)

// buffer is one materialized tensor value.
type buffer struct {
	dtype  dtypes.DType
	dims   []int
	bools  []bool
	ints   []int64
	floats []float32
}

func (b *buffer) size() int {
	size := 1
	for _, dim := range b.dims {
		size *= dim
	}
	return size
}

// Run executes the network on the fed inputs (one tensor per network input,
// keyed by input name) and returns one tensor per network output.
func Run(n *engine.Network, feeds map[string]*tensors.Tensor) ([]*tensors.Tensor, error) {
	values := make(map[*engine.Tensor]*buffer)
	for _, in := range n.Inputs() {
		fed, found := feeds[in.Name()]
		if !found {
			return nil, errors.Errorf("network input %q was not fed", in.Name())
		}
		buf, err := fromTensor(fed)
		if err != nil {
			return nil, errors.WithMessagef(err, "feeding input %q", in.Name())
		}
		if err := checkFeedDims(n, in, buf.dims); err != nil {
			return nil, err
		}
		values[in] = buf
	}

	for _, inst := range n.Instructions() {
		buf, err := eval(inst, values)
		if err != nil {
			return nil, errors.WithMessagef(err, "evaluating %s", inst)
		}
		values[inst.Out()] = buf
	}

	outputs := make([]*tensors.Tensor, len(n.Outputs()))
	for ii, out := range n.Outputs() {
		buf, found := values[out]
		if !found {
			return nil, errors.Errorf("network output #%d (%s) was never produced", ii, out)
		}
		t, err := toTensor(buf)
		if err != nil {
			return nil, errors.WithMessagef(err, "materializing output #%d", ii)
		}
		outputs[ii] = t
	}
	return outputs, nil
}

func checkFeedDims(n *engine.Network, in *engine.Tensor, dims []int) error {
	if len(dims) != in.Rank() {
		return errors.Errorf("input %q requires rank %d, fed rank %d", in.Name(), in.Rank(), len(dims))
	}
	minDims, maxDims := n.Profile(in)
	for axis, dim := range in.Dims() {
		fed := dims[axis]
		if dim != engine.DynamicDim {
			if fed != dim {
				return errors.Errorf("input %q axis #%d requires size %d, fed %d", in.Name(), axis, dim, fed)
			}
			continue
		}
		if fed < minDims[axis] || fed > maxDims[axis] {
			return errors.Errorf("input %q axis #%d must be in [%d, %d], fed %d",
				in.Name(), axis, minDims[axis], maxDims[axis], fed)
		}
	}
	return nil
}

func eval(inst engine.Instruction, values map[*engine.Tensor]*buffer) (*buffer, error) {
	switch it := inst.(type) {
	case *engine.Constant:
		return fromTensor(it.Value)
	case *engine.Cast:
		return evalCast(values[it.In], it.Out().DType())
	case *engine.Reshape:
		return evalReshape(values[it.In], it.In.Dims(), it.Out().Dims())
	case *engine.Unary:
		return evalUnary(it.Op, values[it.In])
	case *engine.ElementWise:
		return evalElementWise(it.Op, values[it.LHS], values[it.RHS])
	case *engine.Slice:
		return evalSlice(values[it.In], it.Starts, it.Sizes, it.Strides)
	}
	return nil, errors.Errorf("unsupported instruction %s", inst)
}

func evalReshape(in *buffer, inEngineDims, outEngineDims []int) (*buffer, error) {
	out := &buffer{dtype: in.dtype, bools: in.bools, ints: in.ints, floats: in.floats}
	out.dims = make([]int, len(outEngineDims))
	// Dynamic output axes resolve, in order, from the actual sizes of the
	// input's dynamic axes (the builder guarantees the counts match).
	var dynamicSizes []int
	for axis, dim := range inEngineDims {
		if dim == engine.DynamicDim {
			dynamicSizes = append(dynamicSizes, in.dims[axis])
		}
	}
	next := 0
	for axis, dim := range outEngineDims {
		if dim == engine.DynamicDim {
			if next >= len(dynamicSizes) {
				return nil, errors.Errorf("cannot resolve dynamic axes of reshape to %v", outEngineDims)
			}
			out.dims[axis] = dynamicSizes[next]
			next++
			continue
		}
		out.dims[axis] = dim
	}
	return out, nil
}
