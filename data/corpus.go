// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Vocab maps token strings to ids. Unknown tokens map to the unknown id.
type Vocab struct {
	ids   map[string]int32
	padID int32
	unkID int32
}

// NewVocab builds a vocabulary from tokens, assigning ids in order starting
// at 0. Token 0 is the padding token and token 1 the unknown token, matching
// the usual vocabulary file layout.
func NewVocab(tokens []string) *Vocab {
	v := &Vocab{ids: make(map[string]int32, len(tokens)), padID: 0, unkID: 1}
	for i, token := range tokens {
		v.ids[token] = int32(i)
	}
	return v
}

// LoadVocab reads a vocabulary file with one token per line.
func LoadVocab(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open vocabulary file %q", path)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read vocabulary file %q", path)
	}
	return NewVocab(tokens), nil
}

// Size returns the number of tokens in the vocabulary.
func (v *Vocab) Size() int { return len(v.ids) }

// PadID returns the padding token id.
func (v *Vocab) PadID() int32 { return v.padID }

// ID returns the id of token, or the unknown id if absent.
func (v *Vocab) ID(token string) int32 {
	if id, ok := v.ids[token]; ok {
		return id
	}
	return v.unkID
}

// Encode tokenizes text on whitespace and maps each token through the
// vocabulary.
func (v *Vocab) Encode(text string) []int32 {
	fields := strings.Fields(text)
	ids := make([]int32, len(fields))
	for i, field := range fields {
		ids[i] = v.ID(field)
	}
	return ids
}

// LineStream reads sentences from a text source, one per line, and groups
// them into padded batches of up to batchSize rows. Sentence ids are
// assigned sequentially from 0, in input order.
//
// In paired mode each line holds two tab-separated sentences, and batches
// carry both sets.
type LineStream struct {
	scanner   *bufio.Scanner
	vocab     *Vocab
	batchSize int
	paired    bool
	nextID    int64
	done      bool
}

// NewLineStream returns a Stream over r. paired selects tab-separated
// sentence pairs per line.
func NewLineStream(r io.Reader, vocab *Vocab, batchSize int, paired bool) *LineStream {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &LineStream{
		scanner:   scanner,
		vocab:     vocab,
		batchSize: batchSize,
		paired:    paired,
	}
}

// Next implements Stream.
func (s *LineStream) Next() (*Batch, error) {
	if s.done {
		return nil, io.EOF
	}
	var first, second [][]int32
	var ids []int64
	for len(ids) < s.batchSize && s.scanner.Scan() {
		line := s.scanner.Text()
		if s.paired {
			left, right, found := strings.Cut(line, "\t")
			if !found {
				return nil, errors.Errorf("paired input requires two tab-separated sentences per line, got %q", line)
			}
			first = append(first, s.vocab.Encode(left))
			second = append(second, s.vocab.Encode(right))
		} else {
			first = append(first, s.vocab.Encode(line))
		}
		ids = append(ids, s.nextID)
		s.nextID++
	}
	if err := s.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read input")
	}
	if len(ids) == 0 {
		s.done = true
		return nil, io.EOF
	}

	batch := &Batch{SentenceIDs: ids}
	batch.TokenIDs, batch.Mask = pad(first, s.vocab.PadID())
	if s.paired {
		batch.PairTokenIDs, batch.PairMask = pad(second, s.vocab.PadID())
	}
	return batch, nil
}

// pad right-pads rows to the longest row's length, returning the padded
// matrix and the matching 1/0 mask. Empty rows get a minimum length of 1 so
// downstream shapes stay valid.
func pad(rows [][]int32, padID int32) (tokens [][]int32, mask [][]float32) {
	maxLen := 1
	for _, row := range rows {
		if len(row) > maxLen {
			maxLen = len(row)
		}
	}
	tokens = make([][]int32, len(rows))
	mask = make([][]float32, len(rows))
	for i, row := range rows {
		tokens[i] = make([]int32, maxLen)
		mask[i] = make([]float32, maxLen)
		copy(tokens[i], row)
		for j := range tokens[i] {
			if j < len(row) {
				mask[i][j] = 1
			} else {
				tokens[i][j] = padID
			}
		}
	}
	return tokens, mask
}
