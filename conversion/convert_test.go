package conversion

import (
	"errors"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/jiwoong-choi/TensorRT/engine"
	"github.com/jiwoong-choi/TensorRT/fx"
	"github.com/jiwoong-choi/TensorRT/internal/interp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lowerAndRun converts the graph and executes the resulting network on the
// reference evaluator.
func lowerAndRun(t *testing.T, g *fx.Graph, feeds map[string]*tensors.Tensor) (*Lowered, []*tensors.Tensor) {
	t.Helper()
	lowered, err := Convert(g, nil)
	require.NoError(t, err)
	outputs, err := interp.Run(lowered.Network, feeds)
	require.NoError(t, err)
	require.Len(t, outputs, len(g.Outputs()))
	return lowered, outputs
}

// convertErrorKind converts the graph expecting failure and returns the
// structured error, asserting its kind.
func convertErrorKind(t *testing.T, g *fx.Graph, kind ErrorKind) *Error {
	t.Helper()
	_, err := Convert(g, nil)
	require.Error(t, err)
	var convErr *Error
	require.True(t, errors.As(err, &convErr), "expected a structured conversion error, got: %v", err)
	assert.Equal(t, kind, convErr.Kind, "error was: %v", err)
	return convErr
}

func flatFloats(t *testing.T, v *tensors.Tensor) []float32 {
	t.Helper()
	require.Equal(t, dtypes.Float32, v.DType())
	var out []float32
	tensors.ConstFlatData(v, func(flat []float32) {
		out = append([]float32(nil), flat...)
	})
	return out
}

func flatInts(t *testing.T, v *tensors.Tensor) []int64 {
	t.Helper()
	require.Equal(t, dtypes.Int64, v.DType())
	var out []int64
	tensors.ConstFlatData(v, func(flat []int64) {
		out = append([]int64(nil), flat...)
	})
	return out
}

func flatBools(t *testing.T, v *tensors.Tensor) []bool {
	t.Helper()
	require.Equal(t, dtypes.Bool, v.DType())
	var out []bool
	tensors.ConstFlatData(v, func(flat []bool) {
		out = append([]bool(nil), flat...)
	})
	return out
}

func countConstants(n *engine.Network) int {
	count := 0
	for _, inst := range n.Instructions() {
		if _, ok := inst.(*engine.Constant); ok {
			count++
		}
	}
	return count
}

func TestConvert(t *testing.T) {
	g := fx.New("pipeline")
	g.AddInput("x", shapes.Make(dtypes.Float32, 2, 3))
	g.AddConstant("w", tensors.FromFlatDataAndDimensions([]float32{10, 20, 30}, 3))
	g.AddNode(fx.Key("aten.add", "Tensor"), []fx.Input{fx.Ref("x"), fx.Ref("w")}, nil, "sum")
	g.AddNode(fx.Key("aten.neg", ""), []fx.Input{fx.Ref("sum")}, nil, "out")
	g.MarkOutput("out")

	lowered, outputs := lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3),
	})
	require.Len(t, lowered.Outputs, 1)
	assert.Equal(t, "out", lowered.Outputs[0].Name)
	assert.Equal(t, dtypes.Float32, lowered.Outputs[0].Range.DType)
	assert.Equal(t, []int{2, 3}, lowered.Outputs[0].Range.Opt)
	assert.True(t, lowered.Outputs[0].Range.IsStatic())

	assert.Equal(t, []float32{-11, -22, -33, -14, -25, -36}, flatFloats(t, outputs[0]))
}

func TestConvertConstantDeduplication(t *testing.T) {
	// The same backing tensor registered under two names lowers to one
	// Constant instruction.
	shared := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)
	g := fx.New("dedup")
	g.AddInput("x", shapes.Make(dtypes.Float32, 3))
	g.AddConstant("w1", shared)
	g.AddConstant("w2", shared)
	g.AddNode(fx.Key("aten.add", "Tensor"), []fx.Input{fx.Ref("x"), fx.Ref("w1")}, nil, "a")
	g.AddNode(fx.Key("aten.add", "Tensor"), []fx.Input{fx.Ref("a"), fx.Ref("w2")}, nil, "b")
	g.MarkOutput("b")

	lowered, outputs := lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions([]float32{0, 0, 0}, 3),
	})
	assert.Equal(t, 1, countConstants(lowered.Network))
	assert.Equal(t, []float32{2, 4, 6}, flatFloats(t, outputs[0]))
}

func TestConvertScalarDeduplication(t *testing.T) {
	// Equal scalar literals of the same materialized dtype share one Constant.
	g := fx.New("scalars")
	g.AddInput("x", shapes.Make(dtypes.Float32, 2))
	g.AddNode(fx.Key("aten.add", "Scalar"), []fx.Input{fx.Ref("x"), fx.Float(2)}, nil, "a")
	g.AddNode(fx.Key("aten.mul", "Scalar"), []fx.Input{fx.Ref("a"), fx.Float(2)}, nil, "b")
	g.MarkOutput("b")

	lowered, outputs := lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions([]float32{1, 3}, 2),
	})
	assert.Equal(t, 1, countConstants(lowered.Network))
	assert.Equal(t, []float32{6, 10}, flatFloats(t, outputs[0]))
}

func TestConvertUnusedConstant(t *testing.T) {
	// Constants are materialized on first reference only.
	g := fx.New("unused")
	g.AddInput("x", shapes.Make(dtypes.Float32, 2))
	g.AddConstant("never", tensors.FromFlatDataAndDimensions([]float32{9, 9}, 2))
	g.AddNode(fx.Key("aten.neg", ""), []fx.Input{fx.Ref("x")}, nil, "out")
	g.MarkOutput("out")

	lowered, err := Convert(g, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, countConstants(lowered.Network))
}

func TestConvertConstantOutput(t *testing.T) {
	// A graph output naming a constant materializes it while resolving
	// outputs.
	g := fx.New("const-out")
	g.AddConstant("w", tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2))
	g.MarkOutput("w")

	_, outputs := lowerAndRun(t, g, nil)
	assert.Equal(t, []float32{1, 2}, flatFloats(t, outputs[0]))
}

func TestConvertUnsupportedOperator(t *testing.T) {
	g := fx.New("unsupported")
	g.AddInput("x", shapes.Make(dtypes.Float32, 2))
	g.AddNode(fx.Key("aten.gelu", ""), []fx.Input{fx.Ref("x")}, nil, "out")
	g.MarkOutput("out")

	convErr := convertErrorKind(t, g, UnsupportedOperator)
	assert.Contains(t, convErr.Detail, "aten.gelu.default")

	// The driver error carries the failing node position.
	_, err := Convert(g, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "while converting node 0 out of 1")
}

func TestConvertOperandArity(t *testing.T) {
	g := fx.New("arity")
	g.AddInput("x", shapes.Make(dtypes.Float32, 2))
	g.AddNode(fx.Key("aten.add", "Tensor"), []fx.Input{fx.Ref("x")}, nil, "out")
	g.MarkOutput("out")
	convertErrorKind(t, g, InvalidAttribute)
}

func TestConvertOutputDTypeOverrides(t *testing.T) {
	build := func() *fx.Graph {
		g := fx.New("overrides")
		g.AddInput("x", shapes.Make(dtypes.Int32, 4))
		g.AddNode(fx.Key("aten.asinh", ""), []fx.Input{fx.Ref("x")}, nil, "out")
		g.MarkOutput("out")
		return g
	}

	// asinh promotes the integer operand, so Float32 passes.
	_, err := Convert(build(), &Options{
		OutputDTypeOverrides: map[int]dtypes.DType{0: dtypes.Float32},
	})
	require.NoError(t, err)

	// Asserting the original integer dtype fails post-conversion.
	_, err = Convert(build(), &Options{
		OutputDTypeOverrides: map[int]dtypes.DType{0: dtypes.Int32},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asserted")

	// Out-of-range output index.
	_, err = Convert(build(), &Options{
		OutputDTypeOverrides: map[int]dtypes.DType{3: dtypes.Float32},
	})
	require.Error(t, err)
}

func TestConvertOptionalPassesFlag(t *testing.T) {
	// EnableOptionalPasses changes nothing inside the core.
	g := fx.New("passes")
	g.AddInput("x", shapes.Make(dtypes.Float32, 2))
	g.AddNode(fx.Key("aten.neg", ""), []fx.Input{fx.Ref("x")}, nil, "out")
	g.MarkOutput("out")

	plain, err := Convert(g, nil)
	require.NoError(t, err)
	flagged, err := Convert(g, &Options{EnableOptionalPasses: true})
	require.NoError(t, err)
	assert.Equal(t, len(plain.Network.Instructions()), len(flagged.Network.Instructions()))
}

func TestConvertView(t *testing.T) {
	build := func(shape []int64) *fx.Graph {
		g := fx.New("view")
		g.AddInput("x", shapes.Make(dtypes.Float32, 2, 3))
		g.AddNode(fx.Key("aten.view", ""), []fx.Input{fx.Ref("x")},
			map[string]any{"shape": shape}, "out")
		g.MarkOutput("out")
		return g
	}

	lowered, outputs := lowerAndRun(t, build([]int64{3, 2}), map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3),
	})
	assert.Equal(t, []int{3, 2}, lowered.Outputs[0].Range.Opt)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, flatFloats(t, outputs[0]))
	assert.Equal(t, []int{3, 2}, outputs[0].Shape().Dimensions)

	// One -1 entry is inferred from the operand size.
	lowered, _ = lowerAndRun(t, build([]int64{-1, 2}), map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3),
	})
	assert.Equal(t, []int{3, 2}, lowered.Outputs[0].Range.Opt)

	convertErrorKind(t, build([]int64{-1, -1}), InvalidAttribute)
	convertErrorKind(t, build([]int64{4, 2}), InvalidAttribute)
	convertErrorKind(t, build([]int64{-1, 4}), InvalidAttribute)

	// Missing "shape" attribute.
	g := fx.New("view-no-shape")
	g.AddInput("x", shapes.Make(dtypes.Float32, 2, 3))
	g.AddNode(fx.Key("aten.view", ""), []fx.Input{fx.Ref("x")}, nil, "out")
	g.MarkOutput("out")
	convertErrorKind(t, g, InvalidAttribute)
}

func TestConvertViewDynamicOperand(t *testing.T) {
	g := fx.New("view-dynamic")
	g.AddRangedInput("x", dtypes.Float32, []int{1, 3}, []int{2, 3}, []int{4, 3})
	g.AddNode(fx.Key("aten.view", ""), []fx.Input{fx.Ref("x")},
		map[string]any{"shape": []int64{-1}}, "out")
	g.MarkOutput("out")
	convertErrorKind(t, g, UnsupportedDynamicShape)
}

func TestConvertClone(t *testing.T) {
	// Clone emits no instruction: the output aliases the operand.
	g := fx.New("clone")
	g.AddInput("x", shapes.Make(dtypes.Float32, 2))
	g.AddNode(fx.Key("aten.clone", ""), []fx.Input{fx.Ref("x")}, nil, "out")
	g.MarkOutput("out")

	lowered, err := Convert(g, nil)
	require.NoError(t, err)
	assert.Empty(t, lowered.Network.Instructions())
	assert.Same(t, lowered.Network.Inputs()[0], lowered.Outputs[0].T)
}

func TestSupportedOps(t *testing.T) {
	ops := SupportedOps()
	assert.Contains(t, ops, fx.Key("aten.add", "Tensor"))
	assert.Contains(t, ops, fx.Key("aten.bitwise_and", "Scalar_Tensor"))
	assert.Contains(t, ops, fx.Key("aten.chunk", "default"))
	assert.NotContains(t, ops, fx.Key("aten.gelu", "default"))
}
