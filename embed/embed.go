// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package embed runs batched sentence-embedding inference over a pool of
// device replicas.
//
// A Pool holds one model replica per configured device. Run reads batches
// from a stream in order, tags them with a monotonically increasing batch
// index, and dispatches them to a fixed set of workers, one per replica.
// Completion is unordered; results are keyed by sentence id in the
// collector, so ordering never matters downstream.
package embed

import (
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/embedder/data"
	"github.com/gomlx/embedder/encoder"
	"github.com/gomlx/embedder/vectors"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config describes a replica pool.
type Config struct {
	// Devices holds one backend configuration string per replica, e.g.
	// "go" for the pure-Go backend or "xla:cuda" for an accelerator. At
	// least one is required.
	Devices []string

	// Model is the encoder geometry, identical on every replica.
	Model encoder.Config

	// DType is the compute precision of the inference graphs. Zero value
	// (InvalidDType) means Float32.
	DType dtypes.DType

	// Similarity selects dual-encoder mode: batches must carry sentence
	// pairs, and the output is one cosine score per pair.
	Similarity bool

	// Checkpoint optionally names a directory with model weights; when
	// empty, variables keep their initializer values (useful in tests).
	Checkpoint string

	// Seed, when non-zero, seeds every replica's variable initialization
	// identically, making replicas interchangeable without a checkpoint.
	Seed int64

	// WorkspaceBytes is logged at startup as the per-device memory budget.
	// It is advisory: the backends manage their own allocations.
	WorkspaceBytes uint64
}

func (c Config) withDefaults() Config {
	if c.DType == dtypes.InvalidDType {
		c.DType = dtypes.Float32
	}
	return c
}

// Pool is a fixed set of model replicas, one per device.
type Pool struct {
	cfg      Config
	replicas []*replica
}

// NewPool builds one replica per device in cfg.Devices, loading them in
// parallel. The first replica failure aborts construction: there is no
// partial pool.
func NewPool(cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Devices) == 0 {
		return nil, errors.New("pool requires at least one device")
	}
	if cfg.WorkspaceBytes > 0 {
		klog.Infof("Reserving %s of workspace per device", humanize.Bytes(cfg.WorkspaceBytes))
	}

	replicas := make([]*replica, len(cfg.Devices))
	errs := make([]error, len(cfg.Devices))
	var wg sync.WaitGroup
	for i, device := range cfg.Devices {
		wg.Add(1)
		go func(i int, device string) {
			defer wg.Done()
			replicas[i], errs[i] = newReplica(i, device, cfg)
		}(i, device)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	klog.Infof("Loaded %d replica(s)", len(replicas))
	return &Pool{cfg: cfg, replicas: replicas}, nil
}

// NumReplicas returns the number of device replicas in the pool.
func (p *Pool) NumReplicas() int { return len(p.replicas) }

// ProgressFunc is called after each completed batch with the number of
// sentences it carried. It may be called concurrently.
type ProgressFunc func(sentences int)

type task struct {
	index int64
	batch *data.Batch
}

// Run drains the stream, dispatching each batch to one of the pool's
// workers and writing the resulting vectors (or similarity scores) to the
// collector. Worker w exclusively owns replica w for the whole run.
//
// It returns after every worker has joined. The first error -- from the
// stream or from any batch -- stops the run; remaining queued batches are
// drained unprocessed. progress may be nil.
func (p *Pool) Run(stream data.Stream, collector *vectors.Collector, progress ProgressFunc) error {
	tasks := make(chan task, len(p.replicas))
	var firstErr failure

	var wg sync.WaitGroup
	for w, r := range p.replicas {
		wg.Add(1)
		go func(w int, r *replica) {
			defer wg.Done()
			for t := range tasks {
				if firstErr.failed() {
					continue // drain
				}
				if err := r.process(t.batch, collector); err != nil {
					firstErr.set(errors.Wrapf(err, "batch %d failed on replica %d", t.index, w))
					continue
				}
				klog.V(1).Infof("Batch %d (%d sentences) done on replica %d", t.index, t.batch.Size(), w)
				if progress != nil {
					progress(t.batch.Size())
				}
			}
		}(w, r)
	}

	var index int64
	for {
		batch, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			firstErr.set(errors.Wrap(err, "input stream failed"))
			break
		}
		tasks <- task{index: index, batch: batch}
		index++
	}
	close(tasks)
	wg.Wait()
	return firstErr.get()
}

// failure records the first error set, for fan-in from concurrent workers.
type failure struct {
	mu  sync.Mutex
	err error
}

func (f *failure) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *failure) failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err != nil
}

func (f *failure) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
