// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package embed

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/x448/float16"
)

// ExtractVectors copies a model output of shape [..., embSize] into one
// float32 vector per row. Float32 outputs are copied directly; float16
// outputs are widened element by element. Any other dtype panics: the output
// precision is a model/configuration property, not a per-batch condition,
// so there is nothing to recover.
func ExtractVectors(t *tensors.Tensor) [][]float32 {
	var flat []float32
	switch t.DType() {
	case dtypes.Float32:
		flat = tensors.MustCopyFlatData[float32](t)
	case dtypes.Float16:
		halves := tensors.MustCopyFlatData[float16.Float16](t)
		flat = make([]float32, len(halves))
		for i, h := range halves {
			flat[i] = h.Float32()
		}
	default:
		exceptions.Panicf("unsupported embedding dtype %s -- only float32 and float16 outputs can be extracted", t.DType())
	}

	embSize := t.Shape().Dim(-1)
	rows := t.Shape().Size() / embSize
	vecs := make([][]float32, rows)
	for i := range vecs {
		vecs[i] = flat[i*embSize : (i+1)*embSize]
	}
	return vecs
}
