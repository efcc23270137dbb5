// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package embed

import (
	"github.com/gomlx/embedder/data"
	"github.com/gomlx/embedder/encoder"
	"github.com/gomlx/embedder/vectors"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// replica is one device's copy of the model: its backend, its own variable
// context (weights are loaded per replica, the checkpoint is a shared
// read-only source) and the compiled executor. A replica is owned by exactly
// one worker goroutine during a run, so it needs no locking of its own.
type replica struct {
	id      int
	backend backends.Backend
	ctx     *context.Context
	exec    *context.Exec
	paired  bool
}

// newReplica builds and warms up the replica for the given device
// configuration. All graph and checkpoint failures surface as errors here,
// before any batch is dispatched.
func newReplica(id int, device string, cfg Config) (r *replica, err error) {
	err = exceptions.TryCatch[error](func() {
		backend, bErr := backends.NewWithConfig(device)
		if bErr != nil {
			exceptions.Panicf("replica %d: failed to create backend for device %q: %v", id, device, bErr)
		}
		ctx := context.New()
		if cfg.Seed != 0 {
			if sErr := ctx.SetRNGStateFromSeed(cfg.Seed); sErr != nil {
				exceptions.Panicf("replica %d: failed to seed RNG state: %v", id, sErr)
			}
		}
		if cfg.Checkpoint != "" {
			if _, cErr := checkpoints.Build(ctx).Dir(cfg.Checkpoint).Done(); cErr != nil {
				exceptions.Panicf("replica %d: failed to attach checkpoint %q: %v", id, cfg.Checkpoint, cErr)
			}
		}

		var exec *context.Exec
		if cfg.Similarity {
			model := encoder.NewDual(ctx.In("model"), cfg.Model)
			exec = context.MustNewExec(backend, ctx,
				func(ctx *context.Context, tokens, mask, pairTokens, pairMask *graph.Node) *graph.Node {
					return model.Similarity(tokens, mask, pairTokens, pairMask, cfg.DType)
				})
		} else {
			model := encoder.New(ctx.In("model"), cfg.Model)
			exec = context.MustNewExec(backend, ctx,
				func(ctx *context.Context, tokens, mask *graph.Node) *graph.Node {
					return model.Embed(tokens, mask, cfg.DType)
				})
		}
		r = &replica{id: id, backend: backend, ctx: ctx, exec: exec, paired: cfg.Similarity}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load replica %d on device %q", id, device)
	}

	// Warm up with a minimal batch: binds every parameter, loads checkpoint
	// values and JIT-compiles one graph, so load failures abort pool
	// construction rather than the first real batch.
	if err := r.warmup(); err != nil {
		return nil, errors.Wrapf(err, "failed to load replica %d on device %q", id, device)
	}
	klog.V(1).Infof("Replica %d ready on device %q", id, device)
	return r, nil
}

func (r *replica) warmup() error {
	tokens := [][]int32{{0}}
	mask := [][]float32{{1}}
	var err error
	if r.paired {
		_, err = r.exec.Exec(tokens, mask, tokens, mask)
	} else {
		_, err = r.exec.Exec(tokens, mask)
	}
	return err
}

// process runs one batch through the replica and writes its vectors to the
// collector, one per sentence id.
func (r *replica) process(batch *data.Batch, collector *vectors.Collector) error {
	if batch.IsPaired() != r.paired {
		return errors.Errorf("batch pairing (%v) does not match the pool's similarity mode (%v)",
			batch.IsPaired(), r.paired)
	}

	var results []*tensors.Tensor
	var err error
	if r.paired {
		results, err = r.exec.Exec(batch.TokenIDs, batch.Mask, batch.PairTokenIDs, batch.PairMask)
	} else {
		results, err = r.exec.Exec(batch.TokenIDs, batch.Mask)
	}
	if err != nil {
		return err
	}

	vecs := ExtractVectors(results[0])
	if len(vecs) != batch.Size() {
		return errors.Errorf("model returned %d vectors for %d sentences", len(vecs), batch.Size())
	}
	for i, id := range batch.SentenceIDs {
		if err := collector.Write(id, vecs[i]); err != nil {
			return err
		}
	}
	return nil
}
