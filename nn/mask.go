// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/x448/float16"
)

// LogMask converts a multiplicative padding mask into an additive log-domain
// mask, laid out for attention logits.
//
// mask is shaped [batch, seqLen] with 1 for real tokens and 0 for padding
// (boolean masks are accepted and converted). The result is shaped
// [batch*numHeads, 1, seqLen] in dtype: 0 where the token is real and a
// large negative constant where it is padding, so that adding it to
// attention logits drives padded positions to ~0 after softmax.
//
// The negative constant is MaskFactor(dtype), which stays clear of the
// dtype's lowest value so that adding it to a finite logit cannot overflow
// to -Inf, including in float16.
func LogMask(mask *graph.Node, numHeads int, dtype dtypes.DType) *graph.Node {
	if mask.Rank() != 2 {
		exceptions.Panicf("LogMask requires a [batch, seqLen] mask, got shape %s", mask.Shape())
	}
	batch := mask.Shape().Dim(0)
	seqLen := mask.Shape().Dim(1)

	m := mask
	if m.DType() != dtype {
		m = graph.ConvertDType(m, dtype)
	}
	logMask := graph.MulScalar(graph.OneMinus(m), MaskFactor(dtype))

	// [batch, seqLen] -> [batch, numHeads, 1, seqLen] -> [batch*numHeads, 1, seqLen]
	logMask = graph.InsertAxes(logMask, 1, 1)
	logMask = graph.BroadcastToDims(logMask, batch, numHeads, 1, seqLen)
	return graph.Reshape(logMask, batch*numHeads, 1, seqLen)
}

// MaskFactor returns the additive masking constant for dtype: half the
// dtype's lowest finite value, floored at -1e8. Halving leaves headroom so
// that masked logits remain finite under further addition.
func MaskFactor(dtype dtypes.DType) float64 {
	var lowest float64
	switch v := dtype.LowestValue().(type) {
	case float32:
		lowest = float64(v)
	case float64:
		lowest = v
	case float16.Float16:
		lowest = float64(v.Float32())
	default:
		exceptions.Panicf("no masking constant for dtype %s -- only float16, float32 and float64 are supported", dtype)
	}
	return max(lowest/2, -1e8)
}
