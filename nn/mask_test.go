// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/stretchr/testify/require"
)

func TestLogMask(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	got := CallOnce(backend, func(mask *Node) *Node {
		return LogMask(mask, 2, dtypes.Float32)
	}, [][]float32{{1, 1, 0}, {1, 0, 0}})

	require.NoError(t, got.Shape().CheckDims(4, 1, 3))
	factor := float32(MaskFactor(dtypes.Float32))
	want := [][][]float32{
		{{0, 0, factor}}, // batch 0, head 0
		{{0, 0, factor}}, // batch 0, head 1
		{{0, factor, factor}},
		{{0, factor, factor}},
	}
	require.Equal(t, want, got.Value())
}

func TestLogMaskBool(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	got := CallOnce(backend, func(mask *Node) *Node {
		return LogMask(mask, 1, dtypes.Float32)
	}, [][]bool{{true, false}})

	factor := float32(MaskFactor(dtypes.Float32))
	require.Equal(t, [][][]float32{{{0, factor}}}, got.Value())
}

func TestLogMaskRequiresRank2(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	require.Panics(t, func() {
		CallOnce(backend, func(mask *Node) *Node {
			return LogMask(mask, 2, dtypes.Float32)
		}, []float32{1, 0})
	})
}

func TestMaskFactor(t *testing.T) {
	// Wide dtypes are floored at -1e8 so masked logits stay well within
	// range; float16 uses half its lowest value instead.
	require.Equal(t, -1e8, MaskFactor(dtypes.Float32))
	require.Equal(t, -1e8, MaskFactor(dtypes.Float64))
	require.Equal(t, float64(-65504)/2, MaskFactor(dtypes.Float16))
	require.Panics(t, func() { MaskFactor(dtypes.Int32) })
}
