// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// embedder computes sentence embeddings (or sentence-pair similarity
// scores) for a text corpus, one sentence per line, using a pool of device
// replicas.
//
// Usage:
//
//	embedder --vocab=vocab.txt --input=corpus.txt --output=vectors.txt
//	embedder --vocab=vocab.txt --similarity --input=pairs.tsv
//
// In similarity mode each input line holds two tab-separated sentences and
// the output is one cosine score per pair.
package main

import (
	"flag"
	"io"
	"os"
	"strings"

	"github.com/gomlx/embedder/data"
	"github.com/gomlx/embedder/embed"
	"github.com/gomlx/embedder/encoder"
	"github.com/gomlx/embedder/vectors"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagInput  = flag.String("input", "-", "Input file with one sentence per line, or \"-\" for stdin")
	flagOutput = flag.String("output", "-", "Output file for vectors, or \"-\" for stdout")
	flagVocab  = flag.String("vocab", "", "Vocabulary file, one token per line (required)")

	flagDevices = flag.String("devices", "go", "Comma-separated backend configurations, one replica per entry "+
		"(e.g. \"go\" or \"xla:cuda,xla:cuda\")")
	flagCheckpoint = flag.String("checkpoint", "", "Directory with model weights; random weights if empty")
	flagSeed       = flag.Int64("seed", 0, "Seed for variable initialization when no checkpoint is given")
	flagWorkspace  = flag.Uint64("workspace", 0, "Advisory per-device workspace budget in MB")

	flagBatchSize  = flag.Int("batch_size", 64, "Sentences per batch")
	flagSimilarity = flag.Bool("similarity", false, "Score tab-separated sentence pairs instead of embedding")
	flagBinary     = flag.Bool("binary", false, "Write vectors in binary format instead of text")
	flagFP16       = flag.Bool("fp16", false, "Compute in float16 (outputs are widened to float32)")

	flagDimModel = flag.Int("dim_model", 512, "Model dimension")
	flagFFNDim   = flag.Int("ffn_dim", 0, "Feed-forward dimension; 0 means 4*dim_model")
	flagHeads    = flag.Int("heads", 8, "Attention heads")
	flagDepth    = flag.Int("depth", 6, "Encoder layers")
	flagNorm     = flag.String("norm", encoder.NormLayer, "Normalization: layernorm or rmsnorm")

	flagProgress = flag.Bool("progress", true, "Show a progress bar on stderr")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagVocab == "" {
		klog.Fatalf("--vocab is required")
	}

	vocab := must.M1(data.LoadVocab(*flagVocab))
	klog.Infof("Loaded vocabulary with %d tokens", vocab.Size())

	dtype := dtypes.Float32
	if *flagFP16 {
		dtype = dtypes.Float16
	}
	cfg := embed.Config{
		Devices: strings.Split(*flagDevices, ","),
		Model: encoder.Config{
			VocabSize: vocab.Size(),
			DimModel:  *flagDimModel,
			FFNDim:    *flagFFNDim,
			NumHeads:  *flagHeads,
			Depth:     *flagDepth,
			Norm:      *flagNorm,
		},
		DType:          dtype,
		Similarity:     *flagSimilarity,
		Checkpoint:     *flagCheckpoint,
		Seed:           *flagSeed,
		WorkspaceBytes: *flagWorkspace * 1024 * 1024,
	}
	pool := must.M1(embed.NewPool(cfg))

	input := openInput(*flagInput)
	stream := data.NewLineStream(input, vocab, *flagBatchSize, *flagSimilarity)
	collector := must.M1(vectors.NewCollector(*flagOutput, *flagBinary))

	var progress embed.ProgressFunc
	if *flagProgress {
		bar := progressbar.Default(-1, "embedding")
		progress = func(sentences int) { _ = bar.Add(sentences) }
	}

	if err := pool.Run(stream, collector, progress); err != nil {
		klog.Fatalf("Run failed: %+v", err)
	}
	must.M(collector.Close())
	klog.Infof("Done")
}

func openInput(path string) io.Reader {
	if path == "" || path == "-" {
		return os.Stdin
	}
	f := must.M1(os.Open(path))
	return f
}
