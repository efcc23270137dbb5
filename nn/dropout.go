// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
)

// Dropout randomly zeroes elements of its input with probability rate and
// scales the survivors by 1/(1-rate), so the output keeps the input's
// expectation.
//
// It is only active on graphs marked as training (Context.IsTraining); on
// evaluation graphs it is the identity, returning x unchanged. A rate of 0
// makes it the identity everywhere.
type Dropout struct {
	ctx  *context.Context
	rate float64

	// maskShape, when non-nil, fixes the random mask's dimensions; the mask
	// is broadcast against the input, so it must have the input's rank with
	// dimensions of 1 where broadcasting is wanted. nil derives the mask
	// from the input's trailing two dimensions, shared across any leading
	// batch axes.
	maskShape []int
}

// NewDropout declares a dropout layer with the given rate in [0, 1).
func NewDropout(ctx *context.Context, rate float64) *Dropout {
	if rate < 0 || rate >= 1 {
		exceptions.Panicf("dropout rate must be in [0, 1), got %g", rate)
	}
	return &Dropout{ctx: ctx, rate: rate}
}

// WithMaskShape fixes the shape of the random mask, broadcast against the
// input. Use it to drop whole rows or columns at once, e.g. for inputs
// shaped [batch, seqLen, dim] a mask of [batch, 1, dim] drops the same
// features at every position of a sequence.
func (d *Dropout) WithMaskShape(dims ...int) *Dropout {
	d.maskShape = dims
	return d
}

// Apply implements Unary.
func (d *Dropout) Apply(x *graph.Node) *graph.Node {
	g := x.Graph()
	if d.rate == 0 || !d.ctx.IsTraining(g) {
		return x
	}
	dims := d.maskShape
	if dims == nil {
		dims = make([]int, x.Rank())
		for i := range dims {
			dims[i] = 1
		}
		for _, axis := range []int{x.Rank() - 2, x.Rank() - 1} {
			if axis >= 0 {
				dims[axis] = x.Shape().Dim(axis)
			}
		}
	}
	noise := d.ctx.RandomUniform(g, shapes.Make(x.DType(), dims...))
	dropped := graph.LessOrEqual(noise, graph.Scalar(g, x.DType(), d.rate))
	masked := graph.Where(dropped, graph.ZerosLike(x), x)
	return graph.MulScalar(masked, 1.0/(1.0-d.rate))
}
