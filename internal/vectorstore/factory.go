package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragdocs/internal/config"
	"github.com/fyrsmithlabs/ragdocs/internal/embeddings"
	"go.uber.org/zap"
)

// NewStore creates the Store selected by cfg.Store.Provider:
//   - "chroma" (default): a ChromaStore at Host:Port
//   - "qdrant": a QdrantStore at Host:Port (gRPC)
//   - "chromem": an embedded ChromemStore under Path
//
// Example usage:
//
//	store, err := vectorstore.NewStore(ctx, cfg, embedder, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func NewStore(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := cfg.Store

	switch sc.Provider {
	case config.ProviderChroma, "":
		return NewChromaStore(ChromaConfig{
			Host:     sc.Host,
			Port:     sc.Port,
			UseTLS:   sc.UseTLS,
			Tenant:   sc.Tenant,
			Database: sc.Database,
			APIKey:   sc.APIKey.Value(),
			Timeout:  sc.Timeout.Duration(),
		}, embedder, logger.Named(providerChroma))

	case config.ProviderQdrant:
		return NewQdrantStore(ctx, QdrantConfig{
			Host:       sc.Host,
			Port:       sc.Port,
			APIKey:     sc.APIKey.Value(),
			UseTLS:     sc.UseTLS,
			VectorSize: sc.VectorSize,
			Timeout:    sc.Timeout.Duration(),
		}, embedder, logger.Named(providerQdrant))

	case config.ProviderChromem:
		return NewChromemStore(ChromemConfig{Path: sc.Path}, embedder, logger.Named(providerChromem))

	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chroma, qdrant, chromem)", ErrInvalidConfig, sc.Provider)
	}
}
