// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
)

// Param is a named, lazily bound layer parameter.
//
// A layer declares its parameters at construction time, when only the name
// and the owning (scoped) context are known. The shape only becomes known on
// the first Apply call, from the input node; at that point the layer calls
// Bind, which creates the context variable -- or reuses it if a checkpoint
// loader or a previous graph already materialized it.
//
// Bind is idempotent for a fixed shape. Binding the same parameter with a
// different shape panics: a shape disagreement means two call sites disagree
// about the model geometry, which is unrecoverable.
type Param struct {
	ctx  *context.Context
	name string
	v    *context.Variable
}

// NewParam declares a parameter with the given name under ctx's scope.
// No variable is created until Bind.
func NewParam(ctx *context.Context, name string) *Param {
	return &Param{ctx: ctx, name: name}
}

// Name returns the parameter name within its scope.
func (p *Param) Name() string { return p.name }

// Bound reports whether the parameter has been bound to a variable.
func (p *Param) Bound() bool { return p.v != nil }

// Bind materializes the parameter with the given shape, creating the context
// variable on first use and reusing it afterwards. The variable is
// initialized by the context's current initializer unless a loader (e.g. a
// checkpoint) provides a value.
//
// It panics if the parameter was previously bound with a different shape.
func (p *Param) Bind(shape shapes.Shape) *Param {
	if p.v != nil {
		if !p.v.Shape().Equal(shape) {
			exceptions.Panicf("parameter %q already bound with shape %s, cannot rebind with shape %s",
				p.v.ScopeAndName(), p.v.Shape(), shape)
		}
		return p
	}
	// VariableWithShape reuses an existing variable of the same scope/name and
	// checks the shape, so repeated binding across graphs stays consistent.
	p.v = p.ctx.VariableWithShape(p.name, shape)
	return p
}

// Variable returns the underlying context variable. It panics if the
// parameter is not bound yet.
func (p *Param) Variable() *context.Variable {
	if p.v == nil {
		exceptions.Panicf("parameter %q used before being bound to a shape", p.name)
	}
	return p.v
}

// ValueGraph returns the node holding the parameter value in graph g,
// binding with the given shape first if needed.
func (p *Param) ValueGraph(g *graph.Graph, shape shapes.Shape) *graph.Node {
	return p.Bind(shape).Variable().ValueGraph(g)
}
