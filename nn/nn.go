// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nn is a small framework of composable neural layers used to build
// sentence encoders for inference.
//
// Layers are objects implementing the Unary capability ("apply input →
// output"). They are constructed from a scoped *context.Context and
// materialize their parameters lazily: a layer does not know its parameter
// shapes until the first Apply call, when the input's trailing dimension is
// known. See Param for the binding protocol.
//
// Mode-sensitive layers (Dropout, LinearReluDropout) consult the context's
// per-graph train/eval flag (context.Context.IsTraining), so the same layer
// objects can be reused across training and inference graphs.
package nn

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
)

// Unary is the capability shared by all single-input layers: apply an input
// node and return the output node, both on the same graph.
//
// Apply may be called for different graphs (the executor builds one graph per
// distinct input shape); parameters are shared across graphs through the
// layer's context.
type Unary interface {
	Apply(x *graph.Node) *graph.Node
}

// Activation wraps any unary graph function as a layer, e.g.:
//
//	relu := nn.NewActivation(activations.Relu)
type Activation struct {
	fn func(x *graph.Node) *graph.Node
}

// NewActivation returns an Activation layer applying fn.
func NewActivation(fn func(x *graph.Node) *graph.Node) *Activation {
	return &Activation{fn: fn}
}

// Apply implements Unary.
func (a *Activation) Apply(x *graph.Node) *graph.Node {
	return a.fn(x)
}

// ReLU returns a rectified-linear activation layer.
func ReLU() *Activation { return NewActivation(activations.Relu) }

// GELU returns a Gaussian-error-linear-unit activation layer.
func GELU() *Activation { return NewActivation(activations.Gelu) }

// Tanh returns a hyperbolic-tangent activation layer.
func Tanh() *Activation { return NewActivation(graph.Tanh) }

// Sigmoid returns a sigmoid activation layer.
func Sigmoid() *Activation { return NewActivation(graph.Sigmoid) }

// Swish returns a swish (SiLU) activation layer.
func Swish() *Activation { return NewActivation(activations.Swish) }

// ActivationByName returns an activation layer from its lower-case name.
// It panics on unknown names: the set of activations is closed and a wrong
// name is a configuration error.
func ActivationByName(name string) *Activation {
	switch name {
	case "relu":
		return ReLU()
	case "gelu":
		return GELU()
	case "tanh":
		return Tanh()
	case "sigmoid":
		return Sigmoid()
	case "swish", "silu":
		return Swish()
	default:
		exceptions.Panicf("unknown activation function %q -- valid values are relu, gelu, tanh, sigmoid, swish", name)
	}
	return nil
}
