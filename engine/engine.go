// Package engine provides the low-level, shape-and-type-specialized
// instruction network that the conversion core lowers operator graphs into.
//
// A Network is an ordered list of primitive instructions (Constant,
// ElementWise, Unary, Cast, Reshape, Slice) over Tensor handles. It mirrors a
// TensorRT-style network definition: tensors have a fixed dtype and dims,
// where a dimension of -1 marks a dynamic axis whose admissible sizes are
// given by the min/opt/max profile attached to the network inputs.
//
// The Network is a pure in-memory value: a partially built network can be
// discarded at any point with no cleanup.
//
// Builder methods validate operand dtypes and ranks at insertion time and
// panic (throw exceptions) on misuse: the conversion core is expected to have
// resolved shapes and dtypes before emitting.
package engine

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
)

// DynamicDim marks a dynamic axis in a Tensor's dims.
const DynamicDim = -1

// Tensor is a handle to a value flowing through the Network.
type Tensor struct {
	id    int
	name  string
	dtype dtypes.DType
	dims  []int

	// Profile bounds; only set for network inputs with dynamic axes.
	minDims, maxDims []int

	producer Instruction // nil for network inputs.
}

// ID returns the tensor's unique id within its Network.
func (t *Tensor) ID() int { return t.id }

// Name of the tensor; empty for intermediate values.
func (t *Tensor) Name() string { return t.name }

// DType of the tensor elements.
func (t *Tensor) DType() dtypes.DType { return t.dtype }

// Dims returns the tensor dimensions, with DynamicDim for dynamic axes.
// The returned slice is owned by the tensor, don't modify it.
func (t *Tensor) Dims() []int { return t.dims }

// Rank of the tensor.
func (t *Tensor) Rank() int { return len(t.dims) }

// IsDynamic reports whether any axis is dynamic.
func (t *Tensor) IsDynamic() bool {
	for _, dim := range t.dims {
		if dim == DynamicDim {
			return true
		}
	}
	return false
}

// Producer returns the instruction that computes this tensor, or nil for
// network inputs.
func (t *Tensor) Producer() Instruction { return t.producer }

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	if t.name != "" {
		return fmt.Sprintf("%%%s:%s%v", t.name, t.dtype, t.dims)
	}
	return fmt.Sprintf("%%t%d:%s%v", t.id, t.dtype, t.dims)
}

// Network is an instruction graph under construction.
//
// It is exclusively owned by the conversion walk building it: no locking.
type Network struct {
	name         string
	nextID       int
	inputs       []*Tensor
	instructions []Instruction
	outputs      []*Tensor
}

// NewNetwork creates an empty network.
func NewNetwork(name string) *Network {
	return &Network{name: name}
}

// Name of the network.
func (n *Network) Name() string { return n.name }

// Inputs returns the declared network inputs, in order.
func (n *Network) Inputs() []*Tensor { return n.inputs }

// Instructions returns the emitted instructions, in emission order: every
// instruction's operands are produced by earlier instructions or inputs.
func (n *Network) Instructions() []Instruction { return n.instructions }

// Outputs returns the tensors marked as network outputs, in order.
func (n *Network) Outputs() []*Tensor { return n.outputs }

// AddInput declares a network input. Dynamic axes are marked with DynamicDim
// in dims and bounded by min/max from the profile; static inputs may pass
// min and max as nil.
func (n *Network) AddInput(name string, dtype dtypes.DType, dims, min, max []int) *Tensor {
	for axis, dim := range dims {
		if dim != DynamicDim && dim < 0 {
			exceptions.Panicf("engine: input %q axis #%d has invalid dimension %d", name, axis, dim)
		}
		if dim == DynamicDim && (min == nil || max == nil) {
			exceptions.Panicf("engine: input %q has dynamic axis #%d but no min/max profile", name, axis)
		}
	}
	if (min != nil && len(min) != len(dims)) || (max != nil && len(max) != len(dims)) {
		exceptions.Panicf("engine: input %q profile rank doesn't match dims rank %d", name, len(dims))
	}
	t := n.newTensor(name, dtype, dims, nil)
	if min != nil {
		t.minDims = append([]int(nil), min...)
		t.maxDims = append([]int(nil), max...)
	}
	n.inputs = append(n.inputs, t)
	return t
}

// Profile returns the min/max bounds of a network input, or nil for static
// inputs and intermediate tensors.
func (n *Network) Profile(t *Tensor) (min, max []int) {
	return t.minDims, t.maxDims
}

// MarkOutput declares t as a network output.
func (n *Network) MarkOutput(t *Tensor) {
	n.outputs = append(n.outputs, t)
}

// String implements fmt.Stringer with a listing of the whole network.
func (n *Network) String() string {
	var buf []byte
	buf = fmt.Appendf(buf, "Network %q: %d inputs, %d instructions, %d outputs\n",
		n.name, len(n.inputs), len(n.instructions), len(n.outputs))
	for _, t := range n.inputs {
		buf = fmt.Appendf(buf, "\tinput %s\n", t)
	}
	for _, inst := range n.instructions {
		buf = fmt.Appendf(buf, "\t%s\n", inst)
	}
	for ii, t := range n.outputs {
		buf = fmt.Appendf(buf, "\toutput[#%d] %s\n", ii, t)
	}
	return string(buf)
}

func (n *Network) newTensor(name string, dtype dtypes.DType, dims []int, producer Instruction) *Tensor {
	t := &Tensor{
		id:       n.nextID,
		name:     name,
		dtype:    dtype,
		dims:     append([]int(nil), dims...),
		producer: producer,
	}
	n.nextID++
	return t
}

func (n *Network) emit(inst Instruction) {
	n.instructions = append(n.instructions, inst)
}

func staticSize(dims []int) int {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	return size
}

// AddConstant emits a constant instruction holding the given tensor value.
func (n *Network) AddConstant(value *tensors.Tensor) *Tensor {
	if value == nil {
		exceptions.Panicf("engine: AddConstant with nil value")
	}
	inst := &Constant{Value: value}
	inst.out = n.newTensor("", value.DType(), value.Shape().Dimensions, inst)
	n.emit(inst)
	return inst.out
}
