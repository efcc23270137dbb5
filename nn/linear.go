// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// Linear is an affine projection y = x·W + b over the trailing axis of x.
//
// The weight shape [inputDim, outputDim] is bound on the first Apply, from
// the input's trailing dimension; until then the layer holds only declared
// parameters. The bias is optional.
type Linear struct {
	ctx     *context.Context
	w, b    *Param
	outDim  int
	useBias bool

	// tied, when set, replaces the owned weight with a shared parameter that
	// is transposed on use, e.g. an output projection reusing the embedding
	// matrix.
	tied *Param
}

// NewLinear declares a linear layer with the given output dimension under
// ctx's scope. Parameters are created lazily on the first Apply.
func NewLinear(ctx *context.Context, outputDim int) *Linear {
	return &Linear{
		ctx:     ctx,
		w:       NewParam(ctx, "weights"),
		b:       NewParam(ctx, "biases"),
		outDim:  outputDim,
		useBias: true,
	}
}

// NewLinearTied declares a linear layer that reuses weight as its projection
// matrix, transposed: weight has shape [outputDim, inputDim] (as an embedding
// table would), and the layer computes x·Wᵀ. Tied layers own no weight of
// their own; only the optional bias is created.
func NewLinearTied(ctx *context.Context, weight *Param, outputDim int) *Linear {
	return &Linear{
		ctx:     ctx,
		tied:    weight,
		b:       NewParam(ctx, "biases"),
		outDim:  outputDim,
		useBias: true,
	}
}

// WithBias sets whether the layer adds a bias term. Default is true.
func (l *Linear) WithBias(useBias bool) *Linear {
	l.useBias = useBias
	return l
}

// Apply implements Unary. x must have rank >= 1; the projection applies to
// the trailing axis and all leading axes are treated as batch.
func (l *Linear) Apply(x *graph.Node) *graph.Node {
	g := x.Graph()
	dtype := x.DType()
	inDim := x.Shape().Dim(-1)

	var output *graph.Node
	if l.tied != nil {
		w := l.tied.ValueGraph(g, shapes.Make(dtype, l.outDim, inDim))
		output = graph.Einsum("...i,oi->...o", x, w)
	} else {
		w := l.w.ValueGraph(g, shapes.Make(dtype, inDim, l.outDim))
		output = graph.Einsum("...i,io->...o", x, w)
	}
	if l.useBias {
		b := l.b.ValueGraph(g, shapes.Make(dtype, l.outDim))
		output = graph.Add(output, graph.ExpandLeftToRank(b, output.Rank()))
	}
	return output
}

// LinearReluDropout fuses the most common feed-forward block: a linear
// projection, a ReLU, and dropout. In evaluation graphs the dropout is a
// no-op, so the block reduces to linear+relu.
type LinearReluDropout struct {
	linear  *Linear
	dropout *Dropout
}

// NewLinearReluDropout declares the fused block under ctx's scope.
// A dropoutRate of 0 disables dropout entirely.
func NewLinearReluDropout(ctx *context.Context, outputDim int, dropoutRate float64) *LinearReluDropout {
	return &LinearReluDropout{
		linear:  NewLinear(ctx, outputDim),
		dropout: NewDropout(ctx, dropoutRate),
	}
}

// WithMaskShape fixes the dropout mask dimensions, overriding the default
// derived from the input. See Dropout.WithMaskShape.
func (l *LinearReluDropout) WithMaskShape(dims ...int) *LinearReluDropout {
	l.dropout.WithMaskShape(dims...)
	return l
}

// Apply implements Unary.
func (l *LinearReluDropout) Apply(x *graph.Node) *graph.Node {
	return l.dropout.Apply(activations.Relu(l.linear.Apply(x)))
}
