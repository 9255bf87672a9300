package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// ollamaEmbedder calls the /api/embed endpoint of an Ollama server.
type ollamaEmbedder struct {
	client *ollama.Client
	model  string
}

// NewOllama returns an Embedder backed by the Ollama server at baseURL.
// An empty baseURL uses http://localhost:11434.
func NewOllama(baseURL, model string, timeout time.Duration) (Embedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base URL: %v", ErrInvalidConfig, err)
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	e := &ollamaEmbedder{
		client: ollama.NewClient(u, &http.Client{Timeout: timeout}),
		model:  model,
	}
	return &instrumented{next: e, model: model, metrics: defaultMetrics()}, nil
}

func (e *ollamaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embed(ctx, &ollama.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", ErrEmbeddingFailed, err)
	}
	return resp.Embeddings, nil
}

func (e *ollamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &ollama.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", ErrEmbeddingFailed, err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: ollama returned no embeddings", ErrEmbeddingFailed)
	}
	return resp.Embeddings[0], nil
}
