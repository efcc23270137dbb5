// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package vectors collects embedding vectors produced out of order by
// concurrent workers and serializes them to a sink.
package vectors

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// Collector is a thread-safe sink for embedding vectors keyed by sentence
// id. Writes from concurrent workers are serialized by a mutex; vectors are
// written in arrival order, not id order.
//
// Two encodings are supported:
//
//   - text: one line per vector, "id<TAB>v0 v1 v2 ...";
//   - binary: per vector, little-endian int64 id, uint32 dimension, then
//     dimension float32 values.
type Collector struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	binary bool
	err    error

	// byID keeps a copy of every written vector so callers can inspect the
	// run's output independently of arrival order.
	byID map[int64][]float32
}

// NewCollector creates a collector writing to path, or to stdout if path is
// empty or "-". binary selects the binary encoding over text.
func NewCollector(path string, binary bool) (*Collector, error) {
	var w io.Writer = os.Stdout
	var closer io.Closer
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create output file %q", path)
		}
		w = f
		closer = f
	}
	return newCollector(w, closer, binary), nil
}

// NewCollectorTo creates a collector writing to an arbitrary writer.
func NewCollectorTo(w io.Writer, binary bool) *Collector {
	return newCollector(w, nil, binary)
}

func newCollector(w io.Writer, closer io.Closer, binary bool) *Collector {
	return &Collector{
		w:      bufio.NewWriter(w),
		closer: closer,
		binary: binary,
		byID:   make(map[int64][]float32),
	}
}

// Write records the vector for sentence id and serializes it. It is safe
// for concurrent use. The vector is copied; the caller may reuse the slice.
func (c *Collector) Write(id int64, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.byID[id] = append([]float32(nil), vec...)
	if c.binary {
		c.err = c.writeBinary(id, vec)
	} else {
		c.err = c.writeText(id, vec)
	}
	return c.err
}

func (c *Collector) writeText(id int64, vec []float32) error {
	if _, err := fmt.Fprintf(c.w, "%d\t", id); err != nil {
		return errors.Wrap(err, "failed to write vector")
	}
	for i, v := range vec {
		if i > 0 {
			if err := c.w.WriteByte(' '); err != nil {
				return errors.Wrap(err, "failed to write vector")
			}
		}
		if _, err := c.w.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32)); err != nil {
			return errors.Wrap(err, "failed to write vector")
		}
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "failed to write vector")
	}
	return nil
}

func (c *Collector) writeBinary(id int64, vec []float32) error {
	if err := binary.Write(c.w, binary.LittleEndian, id); err != nil {
		return errors.Wrap(err, "failed to write vector")
	}
	if err := binary.Write(c.w, binary.LittleEndian, uint32(len(vec))); err != nil {
		return errors.Wrap(err, "failed to write vector")
	}
	if err := binary.Write(c.w, binary.LittleEndian, vec); err != nil {
		return errors.Wrap(err, "failed to write vector")
	}
	return nil
}

// Collected returns a copy of every vector written so far, keyed by
// sentence id.
func (c *Collector) Collected() map[int64][]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64][]float32, len(c.byID))
	for id, vec := range c.byID {
		out[id] = append([]float32(nil), vec...)
	}
	return out
}

// Close flushes buffered output and closes the underlying file, if any.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Flush(); err != nil && c.err == nil {
		c.err = errors.Wrap(err, "failed to flush output")
	}
	if c.closer != nil {
		if err := c.closer.Close(); err != nil && c.err == nil {
			c.err = errors.Wrap(err, "failed to close output")
		}
	}
	return c.err
}
