// Package fx defines the source intermediate representation consumed by the
// conversion core: a graph of ATen-style operator nodes, each identified by an
// operator name plus an overload discriminator, referencing tensor values or
// scalar literals, and carrying static attributes.
//
//   - Graph: holds inputs (with static or ranged shape specs), constants,
//     operator nodes and declared outputs. Built by the graph-acquisition
//     collaborator, then handed to conversion.Convert.
//   - Node: one operator call. Immutable once added to a Graph.
//   - OpKey: the (operator, overload) identity used for converter lookup.
//
// As in GoMLX graph building code, constructors panic (throw exceptions) on
// malformed graphs.
package fx

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
)

// InputSpec describes one graph input: its name, dtype and the set of runtime
// shapes the lowered engine must support.
//
// A static input has Min == Opt == Max. A ranged input gives three same-rank
// dimension vectors with min <= opt <= max per axis, mirroring a TensorRT
// optimization profile.
type InputSpec struct {
	Name  string
	DType dtypes.DType

	Min, Opt, Max []int
}

// IsStatic reports whether every axis has a single admissible size.
func (spec *InputSpec) IsStatic() bool {
	for axis := range spec.Opt {
		if spec.Min[axis] != spec.Opt[axis] || spec.Opt[axis] != spec.Max[axis] {
			return false
		}
	}
	return true
}

// Rank of the input.
func (spec *InputSpec) Rank() int { return len(spec.Opt) }

// Graph is an operator graph to be lowered.
//
// It is not safe for concurrent mutation; build it fully before converting.
type Graph struct {
	name string

	inputs      []*InputSpec
	inputByName map[string]*InputSpec

	constants      []string
	constantByName map[string]*tensors.Tensor

	nodes    []*Node
	producer map[string]*Node // value name -> node producing it.

	outputs []string
}

// New creates an empty operator graph.
func New(name string) *Graph {
	return &Graph{
		name:           name,
		inputByName:    make(map[string]*InputSpec),
		constantByName: make(map[string]*tensors.Tensor),
		producer:       make(map[string]*Node),
	}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// AddInput declares a graph input with a static shape.
func (g *Graph) AddInput(name string, shape shapes.Shape) *InputSpec {
	return g.AddRangedInput(name, shape.DType, shape.Dimensions, shape.Dimensions, shape.Dimensions)
}

// AddRangedInput declares a graph input whose runtime shape may vary between
// min and max per axis, with opt being the size the engine is tuned for.
func (g *Graph) AddRangedInput(name string, dtype dtypes.DType, min, opt, max []int) *InputSpec {
	if dtype == dtypes.InvalidDType {
		exceptions.Panicf("fx.Graph(%q).AddRangedInput(%q): invalid dtype", g.name, name)
	}
	if len(min) != len(opt) || len(opt) != len(max) {
		exceptions.Panicf("fx.Graph(%q).AddRangedInput(%q): min/opt/max must have the same rank, got %d/%d/%d",
			g.name, name, len(min), len(opt), len(max))
	}
	for axis := range opt {
		if min[axis] < 0 || min[axis] > opt[axis] || opt[axis] > max[axis] {
			exceptions.Panicf("fx.Graph(%q).AddRangedInput(%q): axis #%d requires 0 <= min <= opt <= max, got (%d, %d, %d)",
				g.name, name, axis, min[axis], opt[axis], max[axis])
		}
	}
	g.checkNewValueName(name)
	spec := &InputSpec{
		Name:  name,
		DType: dtype,
		Min:   append([]int(nil), min...),
		Opt:   append([]int(nil), opt...),
		Max:   append([]int(nil), max...),
	}
	g.inputs = append(g.inputs, spec)
	g.inputByName[name] = spec
	return spec
}

// AddConstant registers a constant tensor value under the given name.
//
// Registering the same name twice is an error, but the same *tensors.Tensor
// may back any number of names: the conversion context deduplicates the
// materialized engine constant by tensor identity.
func (g *Graph) AddConstant(name string, value *tensors.Tensor) {
	if value == nil {
		exceptions.Panicf("fx.Graph(%q).AddConstant(%q): nil tensor", g.name, name)
	}
	g.checkNewValueName(name)
	g.constants = append(g.constants, name)
	g.constantByName[name] = value
}

// AddNode appends one operator call to the graph.
//
// Every *TensorRef operand must name an input, a constant or the output of a
// previously added node. Output names must be fresh.
func (g *Graph) AddNode(key OpKey, inputs []Input, attrs map[string]any, outputs ...string) *Node {
	if len(outputs) == 0 {
		exceptions.Panicf("fx.Graph(%q).AddNode(%s): node must declare at least one output", g.name, key)
	}
	for _, in := range inputs {
		ref, ok := in.(*TensorRef)
		if !ok {
			continue
		}
		if !g.HasValue(ref.Name) {
			exceptions.Panicf("fx.Graph(%q).AddNode(%s): operand %q is not a known input, constant or node output",
				g.name, key, ref.Name)
		}
	}
	node := &Node{
		Key:     key,
		Inputs:  append([]Input(nil), inputs...),
		Outputs: append([]string(nil), outputs...),
		Index:   len(g.nodes),
		attrs:   attrs,
	}
	for _, output := range outputs {
		g.checkNewValueName(output)
		g.producer[output] = node
	}
	g.nodes = append(g.nodes, node)
	return node
}

// MarkOutput declares graph outputs, in order. Each name must be a known value.
func (g *Graph) MarkOutput(names ...string) {
	for _, name := range names {
		if !g.HasValue(name) {
			exceptions.Panicf("fx.Graph(%q).MarkOutput(%q): unknown value", g.name, name)
		}
		g.outputs = append(g.outputs, name)
	}
}

// HasValue reports whether name refers to an input, a constant or a node output.
func (g *Graph) HasValue(name string) bool {
	if _, found := g.inputByName[name]; found {
		return true
	}
	if _, found := g.constantByName[name]; found {
		return true
	}
	_, found := g.producer[name]
	return found
}

// Inputs returns the declared graph inputs, in declaration order.
func (g *Graph) Inputs() []*InputSpec { return g.inputs }

// Input returns the spec of the named input, or nil.
func (g *Graph) Input(name string) *InputSpec { return g.inputByName[name] }

// ConstantNames returns the names of registered constants, in registration order.
func (g *Graph) ConstantNames() []string { return g.constants }

// Constant returns the tensor registered under name, or nil.
func (g *Graph) Constant(name string) *tensors.Tensor { return g.constantByName[name] }

// Nodes returns the operator nodes in insertion order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Producer returns the node producing the named value, or nil if the value is
// an input or constant.
func (g *Graph) Producer(name string) *Node { return g.producer[name] }

// Outputs returns the declared graph outputs, in order.
func (g *Graph) Outputs() []string { return g.outputs }

func (g *Graph) checkNewValueName(name string) {
	if name == "" {
		exceptions.Panicf("fx.Graph(%q): empty value name", g.name)
	}
	if g.HasValue(name) {
		exceptions.Panicf("fx.Graph(%q): value name %q already in use", g.name, name)
	}
}
