// Package vectorstore provides access to the vector database holding
// ingested document chunks.
//
// Three providers implement Store:
//   - ChromaStore: a remote Chroma server over its v2 HTTP API (default)
//   - QdrantStore: a remote Qdrant server over gRPC
//   - ChromemStore: an embedded chromem-go database on local disk
//
// Callers obtain a Store per operation through a Connector, which re-reads
// configuration each time and reports ErrUnavailable when the store address
// is not configured.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrUnavailable is returned by Connector.Connect when the store host or
	// port is not configured.
	ErrUnavailable = errors.New("vector store unavailable")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates an empty document batch.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Store is the set of vector database operations the application needs.
type Store interface {
	// ListCollections returns every collection in the order the backend
	// reports them.
	ListCollections(ctx context.Context) ([]Collection, error)

	// GetCollection returns one collection by exact name.
	// Returns ErrCollectionNotFound if it does not exist.
	GetCollection(ctx context.Context, name string) (Collection, error)

	// CountDocuments returns the number of documents in a collection.
	// Returns ErrCollectionNotFound if it does not exist.
	CountDocuments(ctx context.Context, name string) (int, error)

	// GetOrCreateCollection returns the named collection, creating it with
	// metadata if it does not exist yet.
	GetOrCreateCollection(ctx context.Context, name string, metadata Metadata) (Collection, error)

	// AddDocuments embeds and writes docs to a collection in one batch.
	AddDocuments(ctx context.Context, collection string, docs []Document) error

	// SearchInCollection returns up to k documents most similar to query,
	// restricted to documents whose metadata equals every entry in filter.
	// Fewer than k documents are returned when the collection is smaller.
	SearchInCollection(ctx context.Context, collection, query string, k int, filter Metadata) ([]Document, error)

	// Close releases the connection.
	Close() error
}

// collectionNamePattern accepts names valid for all providers.
var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]{0,510}[A-Za-z0-9])?$`)

// ValidateCollectionName rejects names that no provider accepts, such as
// empty names, path separators and whitespace.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be 1-512 characters of letters, digits, '.', '_' or '-' and start and end with a letter or digit", ErrInvalidCollectionName, name)
	}
	return nil
}

func validateSearch(collection, query string, k int) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if k <= 0 {
		return fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}
