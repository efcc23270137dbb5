// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package data defines the batch data model consumed by the embedding
// pipeline, and thin helpers to produce batches from text lines. The
// batching policy itself (sorting, bucketing by length) is out of scope:
// anything that implements Stream can feed the pipeline.
package data

import "io"

// Batch is one unit of inference work: a padded matrix of token ids, its
// padding mask, and the global ids of the sentences it carries.
//
// In similarity mode each row also carries a paired sentence in PairTokenIDs
// and PairMask, shaped independently of the first set.
type Batch struct {
	// SentenceIDs are the run-global ids of the rows, used to key the
	// output vectors. len(SentenceIDs) == batch size.
	SentenceIDs []int64

	// TokenIDs is [batchSize][seqLen], right-padded with the pad id.
	TokenIDs [][]int32

	// Mask is [batchSize][seqLen] with 1 for real tokens and 0 for padding.
	Mask [][]float32

	// PairTokenIDs and PairMask hold the second sentence of each pair in
	// similarity mode; both are nil otherwise.
	PairTokenIDs [][]int32
	PairMask     [][]float32
}

// Size returns the number of sentences (or pairs) in the batch.
func (b *Batch) Size() int { return len(b.SentenceIDs) }

// SeqLen returns the padded sequence length of the first sentence set, or 0
// for an empty batch.
func (b *Batch) SeqLen() int {
	if len(b.TokenIDs) == 0 {
		return 0
	}
	return len(b.TokenIDs[0])
}

// IsPaired reports whether the batch carries sentence pairs.
func (b *Batch) IsPaired() bool { return b.PairTokenIDs != nil }

// Stream produces batches in order. Next returns io.EOF after the last
// batch; any other error is fatal to the run.
//
// Implementations need not be safe for concurrent use: the pipeline reads
// from a single goroutine and fans the batches out.
type Stream interface {
	Next() (*Batch, error)
}

// SliceStream serves a fixed slice of batches, mostly for tests.
type SliceStream struct {
	batches []*Batch
	next    int
}

// NewSliceStream returns a Stream over the given batches.
func NewSliceStream(batches ...*Batch) *SliceStream {
	return &SliceStream{batches: batches}
}

// Next implements Stream.
func (s *SliceStream) Next() (*Batch, error) {
	if s.next >= len(s.batches) {
		return nil, io.EOF
	}
	b := s.batches[s.next]
	s.next++
	return b, nil
}
