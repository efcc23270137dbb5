// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package vectors

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectorText(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollectorTo(&buf, false)
	require.NoError(t, c.Write(3, []float32{1, -2.5, 0.25}))
	require.NoError(t, c.Write(0, []float32{0.5}))
	require.NoError(t, c.Close())

	require.Equal(t, "3\t1 -2.5 0.25\n0\t0.5\n", buf.String())
}

func TestCollectorBinary(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollectorTo(&buf, true)
	require.NoError(t, c.Write(7, []float32{1.5, 2.5}))
	require.NoError(t, c.Close())

	r := bytes.NewReader(buf.Bytes())
	var id int64
	var dim uint32
	require.NoError(t, binary.Read(r, binary.LittleEndian, &id))
	require.NoError(t, binary.Read(r, binary.LittleEndian, &dim))
	require.Equal(t, int64(7), id)
	require.Equal(t, uint32(2), dim)
	vec := make([]float32, dim)
	require.NoError(t, binary.Read(r, binary.LittleEndian, vec))
	require.Equal(t, []float32{1.5, 2.5}, vec)
	require.Zero(t, r.Len())
}

func TestCollectorConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollectorTo(&buf, true)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			require.NoError(t, c.Write(id, []float32{float32(id), float32(id) * 2}))
		}(int64(i))
	}
	wg.Wait()
	require.NoError(t, c.Close())

	got := c.Collected()
	require.Len(t, got, n)
	for i := int64(0); i < n; i++ {
		require.Equal(t, []float32{float32(i), float32(i) * 2}, got[i])
	}

	// Every record made it to the sink exactly once, whatever the order.
	recordSize := 8 + 4 + 2*4
	require.Equal(t, n*recordSize, buf.Len())
}

func TestCollectorCopiesInput(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollectorTo(&buf, false)
	vec := []float32{1, 2}
	require.NoError(t, c.Write(0, vec))
	vec[0] = 99
	require.Equal(t, []float32{1, 2}, c.Collected()[0])
}
