package conversion

import (
	"fmt"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/jiwoong-choi/TensorRT/fx"
	"github.com/jiwoong-choi/TensorRT/internal/interp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkGraph builds a graph with a single chunk node declaring numOutputs
// pieces over a static input shape.
func chunkGraph(shape shapes.Shape, chunks, dim, numOutputs int) *fx.Graph {
	g := fx.New("chunk")
	g.AddInput("x", shape)
	outputs := make([]string, numOutputs)
	for ii := range outputs {
		outputs[ii] = fmt.Sprintf("piece%d", ii)
	}
	g.AddNode(fx.Key("aten.chunk", ""), []fx.Input{fx.Ref("x")},
		map[string]any{"chunks": chunks, "dim": dim}, outputs...)
	g.MarkOutput(outputs...)
	return g
}

func iotaFloats(size int) []float32 {
	out := make([]float32, size)
	for ii := range out {
		out[ii] = float32(ii)
	}
	return out
}

func TestChunk1D(t *testing.T) {
	// N=11, chunks=3: chunkSize=ceil(11/3)=4, pieces of sizes 4, 4, 3.
	g := chunkGraph(shapes.Make(dtypes.Float32, 11), 3, 0, 3)
	lowered, outputs := lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions(iotaFloats(11), 11),
	})

	wantSizes := []int{4, 4, 3}
	var reassembled []float32
	for ii, out := range outputs {
		assert.Equal(t, []int{wantSizes[ii]}, lowered.Outputs[ii].Range.Opt)
		reassembled = append(reassembled, flatFloats(t, out)...)
	}
	// Pieces are contiguous and cover the operand exactly once.
	assert.Equal(t, iotaFloats(11), reassembled)
}

func TestChunkEvenSplit(t *testing.T) {
	g := chunkGraph(shapes.Make(dtypes.Float32, 12), 3, 0, 3)
	lowered, outputs := lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions(iotaFloats(12), 12),
	})
	for ii := range outputs {
		assert.Equal(t, []int{4}, lowered.Outputs[ii].Range.Opt)
	}
	assert.Equal(t, []float32{8, 9, 10, 11}, flatFloats(t, outputs[2]))
}

func TestChunkElidesEmptyPieces(t *testing.T) {
	// N=4, chunks=6: chunkSize=1, only 4 non-empty pieces are produced and the
	// node must declare exactly that many outputs.
	g := chunkGraph(shapes.Make(dtypes.Float32, 4), 6, 0, 4)
	_, outputs := lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions(iotaFloats(4), 4),
	})
	for ii, out := range outputs {
		assert.Equal(t, []float32{float32(ii)}, flatFloats(t, out))
	}

	// N=4, chunks=3: chunkSize=2, boundaries 0, 2, 4; the piece starting at 4
	// is elided, leaving sizes 2, 2.
	g = chunkGraph(shapes.Make(dtypes.Float32, 4), 3, 0, 2)
	_, outputs = lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions(iotaFloats(4), 4),
	})
	assert.Equal(t, []float32{0, 1}, flatFloats(t, outputs[0]))
	assert.Equal(t, []float32{2, 3}, flatFloats(t, outputs[1]))

	// N=3, chunks=4, dim=-1 on rank 1: chunkSize=1, three pieces of size 1.
	g = chunkGraph(shapes.Make(dtypes.Float32, 3), 4, -1, 3)
	lowered2, outputs2 := lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions(iotaFloats(3), 3),
	})
	for ii, out := range outputs2 {
		assert.Equal(t, []int{1}, lowered2.Outputs[ii].Range.Opt)
		assert.Equal(t, []float32{float32(ii)}, flatFloats(t, out))
	}

	// N=9, chunks=5: chunkSize=2, pieces 2, 2, 2, 2, 1.
	g = chunkGraph(shapes.Make(dtypes.Float32, 9), 5, 0, 5)
	lowered, _ := lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions(iotaFloats(9), 9),
	})
	assert.Equal(t, []int{1}, lowered.Outputs[4].Range.Opt)
}

func TestChunk2D(t *testing.T) {
	// Chunk along axis 1 of a (2, 5) operand: pieces (2, 3) and (2, 2).
	g := chunkGraph(shapes.Make(dtypes.Float32, 2, 5), 2, 1, 2)
	lowered, outputs := lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions(iotaFloats(10), 2, 5),
	})
	assert.Equal(t, []int{2, 3}, lowered.Outputs[0].Range.Opt)
	assert.Equal(t, []int{2, 2}, lowered.Outputs[1].Range.Opt)
	assert.Equal(t, []float32{0, 1, 2, 5, 6, 7}, flatFloats(t, outputs[0]))
	assert.Equal(t, []float32{3, 4, 8, 9}, flatFloats(t, outputs[1]))
}

func TestChunk3D(t *testing.T) {
	// Chunk the middle axis of a (2, 3, 2) operand into 2 pieces: (2, 2, 2)
	// and (2, 1, 2).
	g := chunkGraph(shapes.Make(dtypes.Float32, 2, 3, 2), 2, 1, 2)
	lowered, outputs := lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions(iotaFloats(12), 2, 3, 2),
	})
	assert.Equal(t, []int{2, 2, 2}, lowered.Outputs[0].Range.Opt)
	assert.Equal(t, []int{2, 1, 2}, lowered.Outputs[1].Range.Opt)
	assert.Equal(t, []float32{0, 1, 2, 3, 6, 7, 8, 9}, flatFloats(t, outputs[0]))
	assert.Equal(t, []float32{4, 5, 10, 11}, flatFloats(t, outputs[1]))
}

func TestChunkNegativeDim(t *testing.T) {
	// dim=-1 addresses the last axis.
	g := chunkGraph(shapes.Make(dtypes.Float32, 2, 4), 2, -1, 2)
	lowered, outputs := lowerAndRun(t, g, map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions(iotaFloats(8), 2, 4),
	})
	assert.Equal(t, []int{2, 2}, lowered.Outputs[0].Range.Opt)
	assert.Equal(t, []float32{0, 1, 4, 5}, flatFloats(t, outputs[0]))
	assert.Equal(t, []float32{2, 3, 6, 7}, flatFloats(t, outputs[1]))
}

func TestChunkAttributeErrors(t *testing.T) {
	// Missing chunks attribute.
	g := fx.New("chunk-missing")
	g.AddInput("x", shapes.Make(dtypes.Float32, 4))
	g.AddNode(fx.Key("aten.chunk", ""), []fx.Input{fx.Ref("x")}, nil, "p0")
	g.MarkOutput("p0")
	convertErrorKind(t, g, InvalidAttribute)

	// Non-positive chunks.
	convertErrorKind(t, chunkGraph(shapes.Make(dtypes.Float32, 4), 0, 0, 1), InvalidAttribute)
	// dim out of range.
	convertErrorKind(t, chunkGraph(shapes.Make(dtypes.Float32, 4), 2, 1, 2), InvalidAttribute)
	convertErrorKind(t, chunkGraph(shapes.Make(dtypes.Float32, 4), 2, -2, 2), InvalidAttribute)
	// Declared output count must match the produced piece count.
	convertErrorKind(t, chunkGraph(shapes.Make(dtypes.Float32, 4), 6, 0, 6), InvalidAttribute)
	convertErrorKind(t, chunkGraph(shapes.Make(dtypes.Float32, 11), 3, 0, 2), InvalidAttribute)
}

func TestChunkRanged(t *testing.T) {
	// Axis 0 ranges over [9, 12] with opt 11, chunks=3: chunkSize=4 and the
	// non-empty piece count is 3 at every point of the range, so the partition
	// is well-defined. Only the last piece is dynamic.
	g := fx.New("chunk-ranged")
	g.AddRangedInput("x", dtypes.Float32, []int{9}, []int{11}, []int{12})
	g.AddNode(fx.Key("aten.chunk", ""), []fx.Input{fx.Ref("x")},
		map[string]any{"chunks": 3}, "p0", "p1", "p2")
	g.MarkOutput("p0", "p1", "p2")

	lowered, err := Convert(g, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, lowered.Outputs[0].Range.Opt)
	assert.True(t, lowered.Outputs[0].Range.IsStatic())
	assert.True(t, lowered.Outputs[1].Range.IsStatic())
	assert.Equal(t, []int{1}, lowered.Outputs[2].Range.Min)
	assert.Equal(t, []int{3}, lowered.Outputs[2].Range.Opt)
	assert.Equal(t, []int{4}, lowered.Outputs[2].Range.Max)

	// Execute at both ends of the range and check the reassembly.
	for _, n := range []int{9, 11, 12} {
		outputs, err := interp.Run(lowered.Network, map[string]*tensors.Tensor{
			"x": tensors.FromFlatDataAndDimensions(iotaFloats(n), n),
		})
		require.NoError(t, err, "N=%d", n)
		var reassembled []float32
		for _, out := range outputs {
			reassembled = append(reassembled, flatFloats(t, out)...)
		}
		assert.Equal(t, iotaFloats(n), reassembled, "N=%d", n)
	}
}

func TestChunkAmbiguousRange(t *testing.T) {
	// With chunkSize=4 from opt=11, a min size of 3 yields a single non-empty
	// piece instead of 3: the partition is not stable over the range.
	g := fx.New("chunk-ambiguous")
	g.AddRangedInput("x", dtypes.Float32, []int{3}, []int{11}, []int{12})
	g.AddNode(fx.Key("aten.chunk", ""), []fx.Input{fx.Ref("x")},
		map[string]any{"chunks": 3}, "p0", "p1", "p2")
	g.MarkOutput("p0", "p1", "p2")
	convertErrorKind(t, g, AmbiguousDynamicChunkCount)

	// A max size that spills into a 4th piece is just as ambiguous.
	g = fx.New("chunk-ambiguous-max")
	g.AddRangedInput("x", dtypes.Float32, []int{9}, []int{11}, []int{20})
	g.AddNode(fx.Key("aten.chunk", ""), []fx.Input{fx.Ref("x")},
		map[string]any{"chunks": 3}, "p0", "p1", "p2")
	g.MarkOutput("p0", "p1", "p2")
	convertErrorKind(t, g, AmbiguousDynamicChunkCount)
}
