// Package conversion lowers an fx operator graph into an engine instruction
// network specialized for a static shape or a (min, opt, max) shape range per
// input.
//
// The core is a registry of per-operator lowering rules keyed by the exact
// (operator, overload) pair. Each rule validates operand shapes, dtypes and
// attributes, applies the source IR's broadcasting and type-promotion
// semantics, propagates shape ranges by running the same shape arithmetic at
// the min, opt and max bounds, and emits one or more primitive instructions.
//
// Conversion is all-or-nothing: any failure aborts the walk and surfaces a
// single structured *Error (wrapped with the failing node's position) to the
// caller. A conversion is single-threaded over its own Context; independent
// graphs may be converted concurrently, each with its own call to Convert.
package conversion

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/jiwoong-choi/TensorRT/engine"
	"github.com/jiwoong-choi/TensorRT/fx"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Options is the per-conversion configuration surface.
type Options struct {
	// EnableOptionalPasses tells whether caller-side graph simplification ran
	// before conversion. It has no effect inside the core and is tolerated as
	// a no-op flag.
	EnableOptionalPasses bool

	// OutputDTypeOverrides maps a graph output index to the dtype the caller
	// expects there. Used only to validate the conversion result, never to
	// change promotion logic.
	OutputDTypeOverrides map[int]dtypes.DType
}

// Output describes one lowered graph output: its engine tensor and the
// resolved shape range (static ranges have min == opt == max).
type Output struct {
	Name  string
	Range ShapeRange
	T     *engine.Tensor
}

// Lowered is the result of one conversion: the instruction network plus the
// resolved descriptor of every declared graph output.
type Lowered struct {
	Network *engine.Network
	Outputs []Output
}

// Convert lowers the graph into a new engine network.
//
// It walks the operator nodes in dependency order exactly once, resolving
// each node's converter, validating its operand count, invoking it with the
// shared conversion Context and recording the produced values. opts may be
// nil.
func Convert(graph *fx.Graph, opts *Options) (lowered *Lowered, err error) {
	if opts == nil {
		opts = &Options{}
	}
	ctx := newContext(graph)

	// Lower the graph inputs.
	for _, spec := range graph.Inputs() {
		r := fromInputSpec(spec)
		var minDims, maxDims []int
		if !spec.IsStatic() {
			minDims, maxDims = r.Min, r.Max
		}
		t := ctx.network.AddInput(spec.Name, spec.DType, r.EngineDims(), minDims, maxDims)
		ctx.setValue(spec.Name, &TensorValue{Range: r, T: t})
	}

	// Constants are materialized lazily, on first reference, so unused
	// constants don't bloat the network. Register lookups only.
	sortedNodes := graph.SortedNodes()
	for ii, node := range sortedNodes {
		err = exceptions.TryCatch[error](func() { convertNode(ctx, node) })
		if err != nil {
			// Abort the whole conversion: there is no partial output graph.
			return nil, errors.WithMessagef(err, "while converting node %d out of %d", ii, len(sortedNodes))
		}
	}

	lowered = &Lowered{Network: ctx.network}
	for outputIdx, name := range graph.Outputs() {
		err = exceptions.TryCatch[error](func() {
			v := resolveOperandValue(ctx, name)
			ctx.network.MarkOutput(v.T)
			lowered.Outputs = append(lowered.Outputs, Output{Name: name, Range: v.Range, T: v.T})
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "while resolving graph output #%d (%q)", outputIdx, name)
		}
	}

	if err = validateOutputDTypes(lowered, opts); err != nil {
		return nil, err
	}
	klog.V(1).Infof("conversion: lowered graph %q: %d nodes -> %d instructions",
		graph.Name(), len(sortedNodes), len(lowered.Network.Instructions()))
	return lowered, nil
}

// convertNode lowers a single operator node into the network.
func convertNode(ctx *Context, node *fx.Node) {
	ctx.currentNode = node
	defer func() { ctx.currentNode = nil }()

	spec := resolveConverter(node)
	numInputs := len(node.Inputs)
	if numInputs < spec.minInputs || (spec.maxInputs >= spec.minInputs && numInputs > spec.maxInputs) {
		raisef(InvalidAttribute, node, "operator %s takes %d to %d operands, got %d",
			node.Key, spec.minInputs, spec.maxInputs, numInputs)
	}

	results := spec.fn(ctx, node)
	if len(results) != len(node.Outputs) {
		// A converter/graph mismatch on output arity is a programming error.
		exceptions.Panicf("conversion: converter for %s produced %d values, node declares %d outputs",
			node.Key, len(results), len(node.Outputs))
	}
	for ii, result := range results {
		if result.Range.DType == dtypes.InvalidDType {
			raisef(TypePromotionError, node, "output #%d has no resolved dtype", ii)
		}
		ctx.setValue(node.Outputs[ii], result)
	}
	if klog.V(2).Enabled() {
		klog.Infof("conversion: %s => %s", node, results[0].Range)
	}
}

// resolveOperandValue returns the TensorValue for a named value, lowering
// graph constants on first use.
func resolveOperandValue(ctx *Context, name string) *TensorValue {
	if v, found := ctx.values[name]; found {
		return v
	}
	if value := ctx.graph.Constant(name); value != nil {
		v := ctx.constantValue(name, value)
		ctx.setValue(name, v)
		return v
	}
	return ctx.value(name) // Raises: not produced.
}

// tensorOperand resolves the idx-th operand of node, which must be a tensor
// reference.
func tensorOperand(ctx *Context, node *fx.Node, idx int) *TensorValue {
	ref, ok := node.Inputs[idx].(*fx.TensorRef)
	if !ok {
		raisef(InvalidAttribute, node, "operand #%d must be a tensor, got scalar %s", idx, node.Inputs[idx])
	}
	return resolveOperandValue(ctx, ref.Name)
}

// scalarOperand resolves the idx-th operand of node, which must be a scalar
// literal.
func scalarOperand(ctx *Context, node *fx.Node, idx int) *fx.Scalar {
	scalar, ok := node.Inputs[idx].(*fx.Scalar)
	if !ok {
		raisef(InvalidAttribute, node, "operand #%d must be a scalar literal, got %s", idx, node.Inputs[idx])
	}
	return scalar
}

// validateOutputDTypes checks caller-asserted output dtypes post-conversion.
func validateOutputDTypes(lowered *Lowered, opts *Options) error {
	for outputIdx, want := range opts.OutputDTypeOverrides {
		if outputIdx < 0 || outputIdx >= len(lowered.Outputs) {
			return errors.Errorf("OutputDTypeOverrides refers to output #%d, but the graph declares %d outputs",
				outputIdx, len(lowered.Outputs))
		}
		got := lowered.Outputs[outputIdx].Range.DType
		if got != want {
			return errors.Errorf("output #%d (%q) resolved to dtype %s, but the caller asserted %s",
				outputIdx, lowered.Outputs[outputIdx].Name, got, want)
		}
	}
	return nil
}
