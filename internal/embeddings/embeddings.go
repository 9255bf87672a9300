// Package embeddings turns text into vectors for similarity search.
//
// Two providers are supported: a local Ollama server (the default, using
// nomic-embed-text) and any OpenAI-compatible embeddings endpoint.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragdocs/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the provider could not produce vectors.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder generates vector embeddings.
type Embedder interface {
	// EmbedDocuments returns one vector per text, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery returns the vector for a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	switch cfg.Provider {
	case config.EmbeddingOllama, "":
		return NewOllama(cfg.BaseURL, cfg.Model, cfg.Timeout.Duration())
	case config.EmbeddingOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.Model, cfg.APIKey.Value())
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// instrumented records metrics around another Embedder.
type instrumented struct {
	next    Embedder
	model   string
	metrics *Metrics
}

func (e *instrumented) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	if len(texts) == 0 {
		err := fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		e.metrics.RecordGeneration(ctx, e.model, "embed_documents", time.Since(start), 0, err)
		return nil, err
	}
	vectors, err := e.next.EmbedDocuments(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	e.metrics.RecordGeneration(ctx, e.model, "embed_documents", time.Since(start), len(texts), err)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *instrumented) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	if text == "" {
		err := fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		e.metrics.RecordGeneration(ctx, e.model, "embed_query", time.Since(start), 0, err)
		return nil, err
	}
	vector, err := e.next.EmbedQuery(ctx, text)
	e.metrics.RecordGeneration(ctx, e.model, "embed_query", time.Since(start), 1, err)
	return vector, err
}
