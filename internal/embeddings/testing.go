package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// TestEmbedder is a deterministic bag-of-words embedder for tests.
// Texts sharing words have a higher cosine similarity.
type TestEmbedder struct {
	dim int

	mu    sync.Mutex
	calls int
}

// NewTestEmbedder returns a TestEmbedder producing vectors of size dim.
func NewTestEmbedder(dim int) *TestEmbedder {
	return &TestEmbedder{dim: dim}
}

// Calls returns how many embedding requests were made.
func (e *TestEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *TestEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *TestEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.vector(text), nil
}

func (e *TestEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}
