package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ragdocs/internal/config"
	"github.com/fyrsmithlabs/ragdocs/internal/embeddings"
	"go.uber.org/zap"
)

// Dialer opens a Store for a loaded configuration.
type Dialer func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error)

// DefaultDialer builds the configured embedder and store.
func DefaultDialer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	embedder, err := embeddings.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return NewStore(ctx, cfg, embedder, logger)
}

// Connector hands out a fresh Store per operation. Configuration is loaded
// from its Source on every call, so a store that becomes configured (or
// unconfigured) at runtime is picked up by the next operation.
type Connector struct {
	source config.Source
	dial   Dialer
	logger *zap.Logger
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithDialer replaces the dialer, typically with one returning an in-memory
// store in tests.
func WithDialer(d Dialer) ConnectorOption {
	return func(c *Connector) {
		c.dial = d
	}
}

// WithLogger sets the logger passed to dialed stores.
func WithLogger(l *zap.Logger) ConnectorOption {
	return func(c *Connector) {
		c.logger = l
	}
}

// NewConnector returns a Connector reading configuration from source.
func NewConnector(source config.Source, opts ...ConnectorOption) *Connector {
	c := &Connector{
		source: source,
		dial:   DefaultDialer,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect loads the configuration and opens a Store. It returns
// ErrUnavailable, without dialing, when the store host or port is missing.
// The caller must Close the returned Store.
func (c *Connector) Connect(ctx context.Context) (Store, error) {
	cfg, err := c.source.Load()
	if err != nil {
		ConnectsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Store.Configured() {
		ConnectsTotal.WithLabelValues("unavailable").Inc()
		c.logger.Debug("vector store not configured",
			zap.String("provider", cfg.Store.Provider),
			zap.Bool("host_set", cfg.Store.Host != ""),
			zap.Bool("port_set", cfg.Store.Port != 0),
		)
		return nil, ErrUnavailable
	}

	store, err := c.dial(ctx, cfg, c.logger)
	if err != nil {
		ConnectsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("connecting to %s at %s: %w", cfg.Store.Provider, cfg.Store.Address(), err)
	}
	ConnectsTotal.WithLabelValues("connected").Inc()
	return store, nil
}

// IsUnavailable reports whether err means the store is not configured.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Nop wraps a Store so that Close does nothing. Dialers sharing one store
// across connections return it wrapped.
func Nop(s Store) Store {
	return nopCloser{s}
}

type nopCloser struct {
	Store
}

func (nopCloser) Close() error { return nil }
