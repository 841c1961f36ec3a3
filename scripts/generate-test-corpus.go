//go:build ignore

// Package main generates a synthetic JSON lines corpus for benchmarking
// `ragsearch index` and search.
// Usage: go run scripts/generate-test-corpus.go -docs 1000 -models mini:384,wide:768 > corpus.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

var (
	numDocs      = flag.Int("docs", 1000, "Number of documents to generate")
	chunksPerDoc = flag.Int("chunks", 8, "Chunks per document")
	models       = flag.String("models", "mini:384", "Comma-separated model:dim list")
	output       = flag.String("output", "-", "Output file ('-' for stdout)")
	seed         = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Word pools for generating plausible chunk text
var (
	sources = []string{"wiki", "blog", "docs", "forum", "papers"}
	nouns   = []string{
		"network", "gradient", "tensor", "kernel", "cache",
		"index", "query", "vector", "token", "embedding",
		"cluster", "shard", "replica", "schema", "pipeline",
		"model", "layer", "batch", "encoder", "decoder",
	}
	adjectives = []string{
		"sparse", "dense", "neural", "distributed", "approximate",
		"hybrid", "lexical", "semantic", "stale", "incremental",
	}
	verbs = []string{
		"ranks", "stores", "trains", "scores", "fuses",
		"shards", "caches", "rebuilds", "filters", "embeds",
	}
)

type modelSpec struct {
	name string
	dim  int
}

type record struct {
	Document  any `json:"document,omitempty"`
	Chunk     any `json:"chunk,omitempty"`
	Embedding any `json:"embedding,omitempty"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	specs, err := parseModels(*models)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out := os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()
	enc := json.NewEncoder(w)

	emit := func(r record) {
		if err := enc.Encode(r); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing record: %v\n", err)
			os.Exit(1)
		}
	}

	for d := 0; d < *numDocs; d++ {
		docID := fmt.Sprintf("doc-%06d", d)
		emit(record{Document: map[string]any{
			"id":     docID,
			"source": sources[rng.Intn(len(sources))],
			"title":  sentence(rng, 3),
		}})

		ids := make([]string, *chunksPerDoc)
		for c := 0; c < *chunksPerDoc; c++ {
			ids[c] = fmt.Sprintf("%s-%03d", docID, c)
			emit(record{Chunk: map[string]any{
				"id":          ids[c],
				"document_id": docID,
				"ordinal":     c,
				"text":        sentence(rng, 12+rng.Intn(24)),
				"description": sentence(rng, 6),
			}})
		}

		for _, m := range specs {
			for _, id := range ids {
				emit(record{Embedding: map[string]any{
					"chunk_id": id,
					"model":    m.name,
					"vector":   unitVector(rng, m.dim),
				}})
			}
		}
	}

	fmt.Fprintf(os.Stderr, "Generated %d documents, %d chunks, %d models.\n",
		*numDocs, *numDocs**chunksPerDoc, len(specs))
}

func parseModels(s string) ([]modelSpec, error) {
	var specs []modelSpec
	for _, part := range strings.Split(s, ",") {
		name, dimStr, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("model %q: want name:dim", part)
		}
		dim, err := strconv.Atoi(dimStr)
		if err != nil || dim <= 0 {
			return nil, fmt.Errorf("model %q: bad dimension", part)
		}
		specs = append(specs, modelSpec{name: name, dim: dim})
	}
	return specs, nil
}

func sentence(rng *rand.Rand, words int) string {
	parts := make([]string, words)
	for i := range parts {
		switch i % 3 {
		case 0:
			parts[i] = adjectives[rng.Intn(len(adjectives))]
		case 1:
			parts[i] = nouns[rng.Intn(len(nouns))]
		default:
			parts[i] = verbs[rng.Intn(len(verbs))]
		}
	}
	return strings.Join(parts, " ")
}

func unitVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		x := rng.NormFloat64()
		v[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
