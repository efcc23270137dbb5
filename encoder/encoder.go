// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package encoder assembles nn layers into the sentence-embedding model the
// replica pool executes: a masked transformer encoder with mean pooling over
// positions and L2-normalized outputs, plus a dual-encoder variant scoring
// sentence pairs by cosine similarity.
package encoder

import (
	"fmt"
	"math"

	"github.com/gomlx/embedder/nn"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
)

// Norm selects the normalization used after each encoder sublayer.
const (
	NormLayer = "layernorm"
	NormRMS   = "rmsnorm"
)

// Config describes the encoder geometry. All fields must be set except
// FFNDim (defaults to 4*DimModel) and Norm (defaults to NormLayer).
type Config struct {
	VocabSize int
	DimModel  int
	FFNDim    int
	NumHeads  int
	Depth     int

	// DropoutRate applies to attention weights and feed-forward activations
	// on training graphs only.
	DropoutRate float64

	// Norm is NormLayer or NormRMS.
	Norm string
}

func (c Config) withDefaults() Config {
	if c.FFNDim == 0 {
		c.FFNDim = 4 * c.DimModel
	}
	if c.Norm == "" {
		c.Norm = NormLayer
	}
	return c
}

func (c Config) validate() {
	if c.VocabSize <= 0 || c.DimModel <= 0 || c.Depth <= 0 || c.NumHeads <= 0 {
		exceptions.Panicf("encoder config requires positive VocabSize, DimModel, Depth and NumHeads, got %+v", c)
	}
	if c.DimModel%c.NumHeads != 0 {
		exceptions.Panicf("encoder DimModel (%d) must be divisible by NumHeads (%d)", c.DimModel, c.NumHeads)
	}
	if c.Norm != NormLayer && c.Norm != NormRMS {
		exceptions.Panicf("encoder Norm must be %q or %q, got %q", NormLayer, NormRMS, c.Norm)
	}
}

// Pooler is the single-sentence embedding model: token embeddings, a masked
// encoder stack, masked mean pooling and L2 normalization.
//
// Construction declares every layer under ctx's scope; parameter shapes bind
// on the first graph built. Construction panics on an invalid Config, so a
// replica that cannot pool fails before any batch is dispatched.
type Pooler struct {
	ctx    *context.Context
	cfg    Config
	emb    *nn.Param
	blocks []*block
}

type block struct {
	att     *attention
	ffn     *nn.LinearReluDropout
	ffnDown *nn.Linear
	norm1   nn.Unary
	norm2   nn.Unary
}

// New builds a Pooler under ctx's scope.
func New(ctx *context.Context, cfg Config) *Pooler {
	cfg = cfg.withDefaults()
	cfg.validate()
	p := &Pooler{
		ctx: ctx,
		cfg: cfg,
		emb: nn.NewParam(ctx.In("embeddings"), "embeddings"),
	}
	for i := 0; i < cfg.Depth; i++ {
		blockCtx := ctx.In(fmt.Sprintf("layer_%d", i))
		p.blocks = append(p.blocks, &block{
			att:     newAttention(blockCtx.In("att"), cfg),
			ffn:     nn.NewLinearReluDropout(blockCtx.In("ffn_up"), cfg.FFNDim, cfg.DropoutRate),
			ffnDown: nn.NewLinear(blockCtx.In("ffn_down"), cfg.DimModel),
			norm1:   newNorm(blockCtx.In("norm_att"), cfg.Norm),
			norm2:   newNorm(blockCtx.In("norm_ffn"), cfg.Norm),
		})
	}
	return p
}

func newNorm(ctx *context.Context, kind string) nn.Unary {
	if kind == NormRMS {
		return nn.NewRMSNorm(ctx)
	}
	return nn.NewLayerNorm(ctx)
}

// Config returns the encoder geometry.
func (p *Pooler) Config() Config { return p.cfg }

// Embed maps tokens [batch, seqLen] (int) with mask [batch, seqLen]
// (1=token, 0=padding) to L2-normalized sentence vectors [batch, DimModel].
// dtype selects the compute precision of the graph.
func (p *Pooler) Embed(tokens, mask *graph.Node, dtype dtypes.DType) *graph.Node {
	g := tokens.Graph()
	if tokens.Rank() != 2 || mask.Rank() != 2 {
		exceptions.Panicf("Embed requires [batch, seqLen] tokens and mask, got %s and %s",
			tokens.Shape(), mask.Shape())
	}

	table := p.emb.ValueGraph(g, shapes.Make(dtype, p.cfg.VocabSize, p.cfg.DimModel))
	x := graph.Gather(table, graph.InsertAxes(tokens, -1))
	x = graph.MulScalar(x, math.Sqrt(float64(p.cfg.DimModel)))

	logMask := nn.LogMask(mask, p.cfg.NumHeads, dtype)
	for _, b := range p.blocks {
		x = b.apply(x, logMask)
	}

	boolMask := graph.ConvertDType(mask, dtypes.Bool)
	pooled := graph.MaskedReduceMean(x, boolMask, 1)
	return graph.L2Normalize(pooled, -1)
}

func (b *block) apply(x, logMask *graph.Node) *graph.Node {
	x = b.norm1.Apply(graph.Add(x, b.att.apply(x, logMask)))
	ffnOut := b.ffnDown.Apply(b.ffn.Apply(x))
	return b.norm2.Apply(graph.Add(x, ffnOut))
}

// Dual is the similarity (dual-encoder) model: two Poolers with duplicated
// configuration and independent variable scopes, scoring each sentence pair
// by the cosine similarity of its two embeddings.
type Dual struct {
	source, target *Pooler
}

// NewDual builds the pair of encoders under ctx's scope.
func NewDual(ctx *context.Context, cfg Config) *Dual {
	return &Dual{
		source: New(ctx.In("source"), cfg),
		target: New(ctx.In("target"), cfg),
	}
}

// Source returns the encoder applied to the first sentence of each pair.
func (d *Dual) Source() *Pooler { return d.source }

// Similarity returns one cosine score per pair, shaped [batch, 1].
func (d *Dual) Similarity(tokens, mask, pairTokens, pairMask *graph.Node, dtype dtypes.DType) *graph.Node {
	lhs := d.source.Embed(tokens, mask, dtype)
	rhs := d.target.Embed(pairTokens, pairMask, dtype)
	return graph.CosineSimilarity(lhs, rhs, -1)
}
