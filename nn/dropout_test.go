// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/require"
)

func TestDropoutEvalIsIdentity(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	dropout := NewDropout(ctx.In("dropout"), 0.5)
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, x *Node) *Node {
		ctx.SetTraining(x.Graph(), false)
		return dropout.Apply(x)
	})

	x := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}
	got := exec.Call(x)[0]
	require.Equal(t, x, got.Value())
}

func TestDropoutZeroRateIsIdentity(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	dropout := NewDropout(ctx.In("dropout"), 0)
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, x *Node) *Node {
		ctx.SetTraining(x.Graph(), true)
		return dropout.Apply(x)
	})

	x := [][]float32{{1, 2}, {3, 4}}
	got := exec.Call(x)[0]
	require.Equal(t, x, got.Value())
}

func TestDropoutTraining(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	dropout := NewDropout(ctx.In("dropout"), 0.5)
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, x *Node) *Node {
		ctx.SetTraining(x.Graph(), true)
		return dropout.Apply(x)
	})

	x := make([]float32, 1024)
	for i := range x {
		x[i] = 1
	}
	got := exec.Call(x)[0].Value().([]float32)

	// Survivors are scaled by 1/(1-rate), everything else is zeroed.
	var zeros, kept int
	for _, v := range got {
		switch v {
		case 0:
			zeros++
		case 2:
			kept++
		default:
			t.Fatalf("dropout output must be 0 or 2, got %g", v)
		}
	}
	require.NotZero(t, zeros)
	require.NotZero(t, kept)
}

func TestDropoutDerivedMaskSharedAcrossBatch(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	dropout := NewDropout(ctx.In("dropout"), 0.5)
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, x *Node) *Node {
		ctx.SetTraining(x.Graph(), true)
		return dropout.Apply(x)
	})

	// The default mask covers the trailing two axes only, so every element
	// of the leading batch axis sees the same dropped positions.
	x := make([][][]float32, 8)
	for i := range x {
		x[i] = [][]float32{{1, 1, 1, 1}, {1, 1, 1, 1}}
	}
	got := exec.Call(x)[0].Value().([][][]float32)
	for i := 1; i < len(got); i++ {
		require.Equal(t, got[0], got[i], "batch element %d", i)
	}
}

func TestDropoutInvalidRate(t *testing.T) {
	ctx := context.New()
	require.Panics(t, func() { NewDropout(ctx, 1) })
	require.Panics(t, func() { NewDropout(ctx, -0.1) })
}

func TestDropoutMaskShape(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	// One mask element per row: a row is either fully dropped or fully kept.
	dropout := NewDropout(ctx.In("dropout"), 0.5).WithMaskShape(32, 1)
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, x *Node) *Node {
		ctx.SetTraining(x.Graph(), true)
		return dropout.Apply(x)
	})

	x := make([][]float32, 32)
	for i := range x {
		x[i] = []float32{1, 1, 1, 1}
	}
	got := exec.Call(x)[0].Value().([][]float32)
	for i, row := range got {
		for _, v := range row {
			require.Equal(t, row[0], v, "row %d must be uniformly dropped or kept", i)
		}
	}
}
