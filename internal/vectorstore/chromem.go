package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/ragdocs/internal/embeddings"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const providerChromem = "chromem"

// ChromemConfig holds configuration for the embedded chromem-go database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps everything
	// in memory.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go does not expose collection metadata after creation, so the
// metadata is also kept in a collections.json file next to the database.
type ChromemStore struct {
	db       *chromem.DB
	embedder embeddings.Embedder
	logger   *zap.Logger

	metaPath string
	mu       sync.RWMutex
	meta     map[string]Metadata
}

// NewChromemStore opens (or creates) a chromem database.
func NewChromemStore(config ChromemConfig, embedder embeddings.Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ChromemStore{
		embedder: embedder,
		logger:   logger,
		meta:     make(map[string]Metadata),
	}

	if config.Path == "" {
		s.db = chromem.NewDB()
		return s, nil
	}

	root, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", root, err)
	}
	db, err := chromem.NewPersistentDB(filepath.Join(root, "db"), config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}
	s.db = db
	s.metaPath = filepath.Join(root, "collections.json")
	if err := s.loadMeta(); err != nil {
		return nil, err
	}

	logger.Debug("chromem store opened", zap.String("path", root))
	return s, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) loadMeta() error {
	b, err := os.ReadFile(s.metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading collection metadata: %w", err)
	}
	var raw map[string]Metadata
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("parsing collection metadata: %w", err)
	}
	for name, m := range raw {
		s.meta[name] = m.Normalize()
	}
	return nil
}

// saveMeta must be called with mu held.
func (s *ChromemStore) saveMeta() error {
	if s.metaPath == "" {
		return nil
	}
	b, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.metaPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("writing collection metadata: %w", err)
	}
	return os.Rename(tmp, s.metaPath)
}

// embeddingFunc adapts the embedder for chromem. A non-nil function must
// always be passed, otherwise chromem falls back to its OpenAI default.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	c := s.db.GetCollection(name, s.embeddingFunc())
	if c == nil {
		return nil, fmt.Errorf("collection %q: %w", name, ErrCollectionNotFound)
	}
	return c, nil
}

func (s *ChromemStore) toCollection(name string) Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Collection{Name: name, Metadata: s.meta[name].Normalize()}
}

// ListCollections returns all collections sorted by name.
func (s *ChromemStore) ListCollections(ctx context.Context) ([]Collection, error) {
	_, o := startOp(ctx, providerChromem, "list_collections")

	names := make([]string, 0)
	for name := range s.db.ListCollections() {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Collection, len(names))
	for i, name := range names {
		out[i] = s.toCollection(name)
	}
	return out, o.end(nil)
}

// GetCollection returns one collection by name.
func (s *ChromemStore) GetCollection(ctx context.Context, name string) (Collection, error) {
	_, o := startOp(ctx, providerChromem, "get_collection", attribute.String("collection", name))
	if _, err := s.collection(name); err != nil {
		return Collection{}, o.end(err)
	}
	return s.toCollection(name), o.end(nil)
}

// CountDocuments returns the number of documents in a collection.
func (s *ChromemStore) CountDocuments(ctx context.Context, name string) (int, error) {
	_, o := startOp(ctx, providerChromem, "count", attribute.String("collection", name))
	c, err := s.collection(name)
	if err != nil {
		return 0, o.end(err)
	}
	return c.Count(), o.end(nil)
}

// GetOrCreateCollection creates the collection with metadata unless it exists.
// Metadata of an existing collection is left unchanged.
func (s *ChromemStore) GetOrCreateCollection(ctx context.Context, name string, metadata Metadata) (Collection, error) {
	_, o := startOp(ctx, providerChromem, "get_or_create_collection", attribute.String("collection", name))
	if err := ValidateCollectionName(name); err != nil {
		return Collection{}, o.end(err)
	}

	if s.db.GetCollection(name, s.embeddingFunc()) == nil {
		strMeta := make(map[string]string, len(metadata))
		for k, v := range metadata {
			strMeta[k] = scalarString(v)
		}
		if _, err := s.db.GetOrCreateCollection(name, strMeta, s.embeddingFunc()); err != nil {
			return Collection{}, o.end(fmt.Errorf("creating collection %q: %w", name, err))
		}

		s.mu.Lock()
		s.meta[name] = metadata.Normalize()
		err := s.saveMeta()
		s.mu.Unlock()
		if err != nil {
			return Collection{}, o.end(err)
		}
	}

	return s.toCollection(name), o.end(nil)
}

// AddDocuments embeds docs and adds them to the collection.
func (s *ChromemStore) AddDocuments(ctx context.Context, collection string, docs []Document) error {
	ctx, o := startOp(ctx, providerChromem, "add_documents",
		attribute.String("collection", collection),
		attribute.Int("document_count", len(docs)),
	)
	if len(docs) == 0 {
		return o.end(ErrEmptyDocuments)
	}
	c, err := s.collection(collection)
	if err != nil {
		return o.end(err)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return o.end(fmt.Errorf("document at index %d has no id", i))
		}
		texts[i] = d.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return o.end(fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  toChromemMetadata(d.Metadata),
			Embedding: vectors[i],
		}
	}

	// Embeddings are precomputed, so one goroutine is enough.
	if err := c.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return o.end(fmt.Errorf("adding documents to %q: %w", collection, err))
	}
	return o.end(nil)
}

// SearchInCollection returns up to k nearest documents.
func (s *ChromemStore) SearchInCollection(ctx context.Context, collection, query string, k int, filter Metadata) ([]Document, error) {
	ctx, o := startOp(ctx, providerChromem, "search",
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)
	if err := validateSearch(collection, query, k); err != nil {
		return nil, o.end(err)
	}
	c, err := s.collection(collection)
	if err != nil {
		return nil, o.end(err)
	}

	// chromem requires nResults <= document count.
	n := c.Count()
	if n == 0 {
		return []Document{}, o.end(nil)
	}
	if k > n {
		k = n
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, o.end(fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}

	results, err := c.QueryEmbedding(ctx, vector, k, chromemWhere(filter), nil)
	if err != nil {
		return nil, o.end(fmt.Errorf("querying %q: %w", collection, err))
	}

	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{ID: r.ID, Content: r.Content, Metadata: fromChromemMetadata(r.Metadata)}
	}
	return docs, o.end(nil)
}

// Close is a no-op: chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}

// chromemKindsKey is a reserved document metadata key listing the keys
// whose values were not strings before chromem stringified them, as
// "key=kind" pairs joined by commas.
const chromemKindsKey = "_ragdocs_kinds"

const (
	kindInt   = "int"
	kindFloat = "float"
	kindBool  = "bool"
)

// toChromemMetadata stringifies m and records the original scalar kinds.
func toChromemMetadata(m Metadata) map[string]string {
	if len(m) == 0 {
		return nil
	}
	m = m.Normalize()
	out := make(map[string]string, len(m)+1)
	var kinds []string
	for _, k := range sortedKeys(m) {
		v := m[k]
		if v == nil {
			continue
		}
		out[k] = scalarString(v)
		switch v.(type) {
		case int64:
			kinds = append(kinds, k+"="+kindInt)
		case float64:
			kinds = append(kinds, k+"="+kindFloat)
		case bool:
			kinds = append(kinds, k+"="+kindBool)
		}
	}
	if len(kinds) > 0 {
		out[chromemKindsKey] = strings.Join(kinds, ",")
	}
	return out
}

// fromChromemMetadata restores the values listed in chromemKindsKey and
// drops the key. Everything else stays a string.
func fromChromemMetadata(m map[string]string) Metadata {
	kinds := map[string]string{}
	for _, pair := range strings.Split(m[chromemKindsKey], ",") {
		if k, kind, ok := strings.Cut(pair, "="); ok {
			kinds[k] = kind
		}
	}

	out := make(Metadata, len(m))
	for k, v := range m {
		if k == chromemKindsKey {
			continue
		}
		out[k] = v
		switch kinds[k] {
		case kindInt:
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				out[k] = i
			}
		case kindFloat:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				out[k] = f
			}
		case kindBool:
			if b, err := strconv.ParseBool(v); err == nil {
				out[k] = b
			}
		}
	}
	return out
}

var _ Store = (*ChromemStore)(nil)
