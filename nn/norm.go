// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
)

// LayerNorm normalizes the trailing axis of its input to zero mean and unit
// variance, then applies a learned per-feature scale and offset.
//
// The scale is initialized to one and the offset to zero, so a freshly
// initialized layer is a pure normalization.
type LayerNorm struct {
	ctx         *context.Context
	scale, bias *Param
	epsilon     float64
	affine      bool
}

// NewLayerNorm declares a layer normalization under ctx's scope.
func NewLayerNorm(ctx *context.Context) *LayerNorm {
	return &LayerNorm{
		ctx:     ctx,
		scale:   NewParam(ctx.WithInitializer(initializers.One), "scale"),
		bias:    NewParam(ctx.WithInitializer(initializers.Zero), "bias"),
		epsilon: 1e-6,
		affine:  true,
	}
}

// WithAffine controls whether the learned scale and offset are applied.
// When disabled no parameters are bound and Apply returns the plain
// normalization. Default is true.
func (l *LayerNorm) WithAffine(affine bool) *LayerNorm {
	l.affine = affine
	return l
}

// WithEpsilon sets the value added to the variance before the square root.
// Default is 1e-6.
func (l *LayerNorm) WithEpsilon(epsilon float64) *LayerNorm {
	l.epsilon = epsilon
	return l
}

// Apply implements Unary.
func (l *LayerNorm) Apply(x *graph.Node) *graph.Node {
	mean := graph.ReduceAndKeep(x, graph.ReduceMean, -1)
	centered := graph.Sub(x, mean)
	variance := graph.ReduceAndKeep(graph.Square(centered), graph.ReduceMean, -1)
	normalized := graph.Div(centered, graph.Sqrt(graph.AddScalar(variance, l.epsilon)))
	if !l.affine {
		return normalized
	}

	g := x.Graph()
	dtype := x.DType()
	dim := x.Shape().Dim(-1)
	scale := graph.ExpandLeftToRank(l.scale.ValueGraph(g, shapes.Make(dtype, dim)), x.Rank())
	bias := graph.ExpandLeftToRank(l.bias.ValueGraph(g, shapes.Make(dtype, dim)), x.Rank())
	return graph.Add(graph.Mul(normalized, scale), bias)
}

// RMSNorm normalizes the trailing axis of its input by its root-mean-square,
// then applies a learned per-feature gain. Unlike LayerNorm it does not
// center the input and has no offset.
type RMSNorm struct {
	ctx     *context.Context
	gain    *Param
	epsilon float64
	scaled  bool
}

// NewRMSNorm declares an RMS normalization under ctx's scope.
func NewRMSNorm(ctx *context.Context) *RMSNorm {
	return &RMSNorm{
		ctx:     ctx,
		gain:    NewParam(ctx.WithInitializer(initializers.One), "gain"),
		epsilon: 1e-6,
		scaled:  true,
	}
}

// WithScale controls whether the learned gain is applied. When disabled no
// parameter is bound and Apply returns the plain normalization. Default is
// true.
func (r *RMSNorm) WithScale(scaled bool) *RMSNorm {
	r.scaled = scaled
	return r
}

// WithEpsilon sets the value added to the mean square before the square root.
// Default is 1e-6.
func (r *RMSNorm) WithEpsilon(epsilon float64) *RMSNorm {
	r.epsilon = epsilon
	return r
}

// Apply implements Unary.
func (r *RMSNorm) Apply(x *graph.Node) *graph.Node {
	meanSquare := graph.ReduceAndKeep(graph.Square(x), graph.ReduceMean, -1)
	normalized := graph.Div(x, graph.Sqrt(graph.AddScalar(meanSquare, r.epsilon)))
	if !r.scaled {
		return normalized
	}

	g := x.Graph()
	dtype := x.DType()
	dim := x.Shape().Dim(-1)
	gain := graph.ExpandLeftToRank(r.gain.ValueGraph(g, shapes.Make(dtype, dim)), x.Rank())
	return graph.Mul(normalized, gain)
}
