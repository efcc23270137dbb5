// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package encoder

import (
	"math"

	"github.com/gomlx/embedder/nn"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// attention is multi-head self-attention over a padded sequence. Padding is
// excluded through an additive log-mask on the logits (see nn.LogMask), so
// padded positions get ~0 weight after the softmax.
type attention struct {
	numHeads               int
	query, key, value, out *nn.Linear
	dropout                *nn.Dropout
}

func newAttention(ctx *context.Context, cfg Config) *attention {
	return &attention{
		numHeads: cfg.NumHeads,
		query:    nn.NewLinear(ctx.In("query"), cfg.DimModel),
		key:      nn.NewLinear(ctx.In("key"), cfg.DimModel),
		value:    nn.NewLinear(ctx.In("value"), cfg.DimModel),
		out:      nn.NewLinear(ctx.In("output"), cfg.DimModel),
		dropout:  nn.NewDropout(ctx.In("dropout"), cfg.DropoutRate),
	}
}

// apply runs self-attention on x [batch, seqLen, dimModel] with logMask
// shaped [batch*numHeads, 1, seqLen].
func (a *attention) apply(x, logMask *graph.Node) *graph.Node {
	batch := x.Shape().Dim(0)
	seqLen := x.Shape().Dim(1)
	dim := x.Shape().Dim(2)
	headDim := dim / a.numHeads

	q := splitHeads(a.query.Apply(x), a.numHeads)
	k := splitHeads(a.key.Apply(x), a.numHeads)
	v := splitHeads(a.value.Apply(x), a.numHeads)

	logits := graph.Einsum("bqd,bkd->bqk", q, k)
	logits = graph.MulScalar(logits, 1/math.Sqrt(float64(headDim)))
	logits = graph.Add(logits, graph.BroadcastToDims(logMask, batch*a.numHeads, seqLen, seqLen))

	weights := a.dropout.Apply(graph.Softmax(logits, -1))
	attended := graph.Einsum("bqk,bkd->bqd", weights, v)
	return a.out.Apply(mergeHeads(attended, batch, a.numHeads))
}

// splitHeads reshapes [batch, seqLen, dim] to [batch*numHeads, seqLen,
// dim/numHeads].
func splitHeads(x *graph.Node, numHeads int) *graph.Node {
	batch := x.Shape().Dim(0)
	seqLen := x.Shape().Dim(1)
	headDim := x.Shape().Dim(2) / numHeads
	x = graph.Reshape(x, batch, seqLen, numHeads, headDim)
	x = graph.TransposeAllDims(x, 0, 2, 1, 3)
	return graph.Reshape(x, batch*numHeads, seqLen, headDim)
}

// mergeHeads is the inverse of splitHeads.
func mergeHeads(x *graph.Node, batch, numHeads int) *graph.Node {
	seqLen := x.Shape().Dim(1)
	headDim := x.Shape().Dim(2)
	x = graph.Reshape(x, batch, numHeads, seqLen, headDim)
	x = graph.TransposeAllDims(x, 0, 2, 1, 3)
	return graph.Reshape(x, batch, seqLen, numHeads*headDim)
}
