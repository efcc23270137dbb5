// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package embed

import (
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/gomlx/embedder/nn"
)

func TestExtractVectorsFloat32(t *testing.T) {
	tensor := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	vecs := ExtractVectors(tensor)
	require.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, vecs)
}

func TestExtractVectorsFloat16(t *testing.T) {
	want := []float32{0.5, -1.25, 0.3333, 100.0, -0.0001, 7}
	halves := make([]float16.Float16, len(want))
	for i, v := range want {
		halves[i] = float16.Fromfloat32(v)
	}
	tensor := tensors.FromFlatDataAndDimensions(halves, 2, 3)

	vecs := ExtractVectors(tensor)
	require.Len(t, vecs, 2)
	flat := append(append([]float32{}, vecs[0]...), vecs[1]...)
	// Round-tripping through float16 keeps ~3 decimal digits.
	for i := range want {
		require.InDelta(t, want[i], flat[i], 1e-3*max(1, float64(want[i])), "element %d", i)
	}
}

func TestExtractVectorsUnsupportedDType(t *testing.T) {
	require.Panics(t, func() {
		ExtractVectors(tensors.FromFlatDataAndDimensions([]float64{1, 2}, 1, 2))
	})
	require.Panics(t, func() {
		ExtractVectors(tensors.FromFlatDataAndDimensions([]int32{1, 2}, 1, 2))
	})
}

// A graph computed in float16 and widened back through ExtractVectors must
// agree with the same graph computed in float32 to ~3 decimal digits.
func TestExtractVectorsFloat16GraphMatchesFloat32(t *testing.T) {
	backend := backends.NewWithConfig("go")
	ctx := context.New().WithInitializer(initializers.One)
	full := nn.NewLinear(ctx.In("full"), 4)
	half := nn.NewLinear(ctx.In("half"), 4)
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, x *graph.Node) (*graph.Node, *graph.Node) {
		return full.Apply(x), half.Apply(graph.ConvertDType(x, dtypes.Float16))
	})

	results := exec.Call([][]float32{{0.1, -0.2, 0.3}, {1, 2, 3}})
	require.Equal(t, dtypes.Float16, results[1].DType())
	want := ExtractVectors(results[0])
	got := ExtractVectors(results[1])
	require.Len(t, got, len(want))
	for i := range want {
		require.InDeltaSlice(t, want[i], got[i], 1e-3, "row %d", i)
	}
}

func TestExtractVectorsSingleRow(t *testing.T) {
	tensor := tensors.FromFlatDataAndDimensions([]float32{9, 8}, 1, 2)
	require.Equal(t, [][]float32{{9, 8}}, ExtractVectors(tensor))
}
