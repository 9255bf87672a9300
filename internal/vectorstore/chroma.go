package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	chhttp "github.com/amikos-tech/chroma-go/pkg/commons/http"
	chromaemb "github.com/amikos-tech/chroma-go/pkg/embeddings"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdocs/internal/embeddings"
)

const (
	providerChroma = "chroma"

	// chromaListPageSize is the page size used to walk the collection list.
	chromaListPageSize = 100
)

// ChromaConfig holds configuration for a Chroma server.
type ChromaConfig struct {
	// Host and Port locate the server's HTTP API.
	Host string
	Port int

	// BaseURL overrides Host and Port, e.g. "https://chroma.example.com".
	BaseURL string

	UseTLS bool

	// Tenant and Database select the Chroma namespace.
	// Default: "default_tenant" / "default_database"
	Tenant   string
	Database string

	// APIKey is sent as the X-Chroma-Token header when set.
	APIKey string

	// Timeout bounds each HTTP request. Default: 30s
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromaConfig) ApplyDefaults() {
	if c.Tenant == "" {
		c.Tenant = chroma.DefaultTenant
	}
	if c.Database == "" {
		c.Database = chroma.DefaultDatabase
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.BaseURL == "" {
		scheme := "http"
		if c.UseTLS {
			scheme = "https"
		}
		c.BaseURL = fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Validate validates the configuration.
func (c ChromaConfig) Validate() error {
	if c.BaseURL == "" && (c.Host == "" || c.Port == 0) {
		return fmt.Errorf("%w: chroma host and port required", ErrInvalidConfig)
	}
	return nil
}

// ChromaStore implements Store against a Chroma server through the
// chroma-go v2 client.
type ChromaStore struct {
	client   chroma.Client
	config   ChromaConfig
	embedder embeddings.Embedder
	ef       chromaemb.EmbeddingFunction
	logger   *zap.Logger
}

// NewChromaStore creates a client for the configured Chroma server.
// No request is made until the first operation.
func NewChromaStore(config ChromaConfig, embedder embeddings.Embedder, logger *zap.Logger) (*ChromaStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	opts := []chroma.ClientOption{
		chroma.WithBaseURL(config.BaseURL),
		chroma.WithDatabaseAndTenant(config.Database, config.Tenant),
		chroma.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	}
	if config.APIKey != "" {
		opts = append(opts, chroma.WithAuth(
			chroma.NewTokenAuthCredentialsProvider(config.APIKey, chroma.XChromaTokenHeader),
		))
	}

	client, err := chroma.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating chroma client: %w", err)
	}

	return &ChromaStore{
		client:   client,
		config:   config,
		embedder: embedder,
		ef:       chromaEmbeddingFunction{embedder: embedder},
		logger:   logger,
	}, nil
}

// chromaEmbeddingFunction adapts an Embedder to chroma-go. Collections are
// always opened with it so the client never falls back to its bundled
// ONNX model.
type chromaEmbeddingFunction struct {
	embedder embeddings.Embedder
}

func (f chromaEmbeddingFunction) EmbedDocuments(ctx context.Context, texts []string) ([]chromaemb.Embedding, error) {
	vectors, err := f.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	return chromaemb.NewEmbeddingsFromFloat32(vectors)
}

func (f chromaEmbeddingFunction) EmbedQuery(ctx context.Context, text string) (chromaemb.Embedding, error) {
	vector, err := f.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return chromaemb.NewEmbeddingFromFloat32(vector), nil
}

// isChromaNotFound reports whether err is the server's answer for a
// missing collection.
func isChromaNotFound(err error) bool {
	var apiErr *chhttp.ChromaError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode == http.StatusNotFound ||
		apiErr.ErrorID == "NotFoundError" ||
		strings.Contains(apiErr.Message, "does not exist")
}

// Heartbeat checks that the server is reachable.
func (s *ChromaStore) Heartbeat(ctx context.Context) error {
	ctx, o := startOp(ctx, providerChroma, "heartbeat")
	return o.end(s.client.Heartbeat(ctx))
}

// ListCollections returns every collection in the server's order.
func (s *ChromaStore) ListCollections(ctx context.Context) ([]Collection, error) {
	ctx, o := startOp(ctx, providerChroma, "list_collections")

	out := []Collection{}
	for offset := 0; ; offset += chromaListPageSize {
		page, err := s.client.ListCollections(ctx,
			chroma.ListWithLimit(chromaListPageSize),
			chroma.ListWithOffset(offset),
		)
		if err != nil {
			return nil, o.end(err)
		}
		for _, c := range page {
			out = append(out, toCollection(c))
		}
		if len(page) < chromaListPageSize {
			break
		}
	}
	return out, o.end(nil)
}

func (s *ChromaStore) getCollection(ctx context.Context, name string) (chroma.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	c, err := s.client.GetCollection(ctx, name, chroma.WithEmbeddingFunctionGet(s.ef))
	if err != nil {
		if isChromaNotFound(err) {
			return nil, fmt.Errorf("collection %q: %w", name, ErrCollectionNotFound)
		}
		return nil, err
	}
	return c, nil
}

// GetCollection returns one collection by name.
func (s *ChromaStore) GetCollection(ctx context.Context, name string) (Collection, error) {
	ctx, o := startOp(ctx, providerChroma, "get_collection", attribute.String("collection", name))
	c, err := s.getCollection(ctx, name)
	if err != nil {
		return Collection{}, o.end(err)
	}
	return toCollection(c), o.end(nil)
}

// CountDocuments returns the number of documents in a collection.
func (s *ChromaStore) CountDocuments(ctx context.Context, name string) (int, error) {
	ctx, o := startOp(ctx, providerChroma, "count", attribute.String("collection", name))
	c, err := s.getCollection(ctx, name)
	if err != nil {
		return 0, o.end(err)
	}
	n, err := c.Count(ctx)
	return n, o.end(err)
}

// GetOrCreateCollection creates the collection with metadata unless it exists.
func (s *ChromaStore) GetOrCreateCollection(ctx context.Context, name string, metadata Metadata) (Collection, error) {
	ctx, o := startOp(ctx, providerChroma, "get_or_create_collection", attribute.String("collection", name))
	if err := ValidateCollectionName(name); err != nil {
		return Collection{}, o.end(err)
	}

	opts := []chroma.CreateCollectionOption{chroma.WithEmbeddingFunctionCreate(s.ef)}
	if len(metadata) > 0 {
		opts = append(opts, chroma.WithCollectionMetadataCreate(
			chroma.NewMetadataFromMap(chromaMetadata(metadata)),
		))
	}

	c, err := s.client.GetOrCreateCollection(ctx, name, opts...)
	if err != nil {
		return Collection{}, o.end(fmt.Errorf("creating collection %q: %w", name, err))
	}
	return toCollection(c), o.end(nil)
}

// AddDocuments embeds docs and writes them in a single add request.
func (s *ChromaStore) AddDocuments(ctx context.Context, collection string, docs []Document) error {
	ctx, o := startOp(ctx, providerChroma, "add_documents",
		attribute.String("collection", collection),
		attribute.Int("document_count", len(docs)),
	)
	if len(docs) == 0 {
		return o.end(ErrEmptyDocuments)
	}

	c, err := s.getCollection(ctx, collection)
	if err != nil {
		return o.end(err)
	}

	ids := make([]chroma.DocumentID, len(docs))
	texts := make([]string, len(docs))
	metadatas := make([]chroma.DocumentMetadata, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return o.end(fmt.Errorf("document at index %d has no id", i))
		}
		ids[i] = chroma.DocumentID(d.ID)
		texts[i] = d.Content
		if len(d.Metadata) > 0 {
			m, err := chroma.NewDocumentMetadataFromMap(chromaMetadata(d.Metadata))
			if err != nil {
				return o.end(fmt.Errorf("document %q metadata: %w", d.ID, err))
			}
			metadatas[i] = m
		}
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return o.end(fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}
	embs, err := chromaemb.NewEmbeddingsFromFloat32(vectors)
	if err != nil {
		return o.end(fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}

	err = c.Add(ctx,
		chroma.WithIDs(ids...),
		chroma.WithTexts(texts...),
		chroma.WithMetadatas(metadatas...),
		chroma.WithEmbeddings(embs...),
	)
	if err != nil {
		return o.end(fmt.Errorf("adding documents to %q: %w", collection, err))
	}

	s.logger.Debug("added documents to chroma",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)
	return o.end(nil)
}

// SearchInCollection returns up to k nearest documents.
func (s *ChromaStore) SearchInCollection(ctx context.Context, collection, query string, k int, filter Metadata) ([]Document, error) {
	ctx, o := startOp(ctx, providerChroma, "search",
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)
	if err := validateSearch(collection, query, k); err != nil {
		return nil, o.end(err)
	}
	where, err := chromaWhere(filter)
	if err != nil {
		return nil, o.end(err)
	}

	c, err := s.getCollection(ctx, collection)
	if err != nil {
		return nil, o.end(err)
	}
	n, err := c.Count(ctx)
	if err != nil {
		return nil, o.end(err)
	}
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

	opts := []chroma.CollectionQueryOption{
		chroma.WithQueryEmbeddings(chromaemb.NewEmbeddingFromFloat32(vector)),
		chroma.WithNResults(k),
		chroma.WithIncludeQuery(chroma.IncludeDocuments, chroma.IncludeMetadatas),
	}
	if where != nil {
		opts = append(opts, chroma.WithWhereQuery(where))
	}

	res, err := c.Query(ctx, opts...)
	if err != nil {
		return nil, o.end(fmt.Errorf("querying %q: %w", collection, err))
	}
	return fromChromaQueryResult(res), o.end(nil)
}

// Close releases idle connections.
func (s *ChromaStore) Close() error {
	return s.client.Close()
}

func toCollection(c chroma.Collection) Collection {
	return Collection{Name: c.Name(), Metadata: fromChromaMetadata(c.Metadata())}
}

// fromChromaQueryResult flattens the result group of a single query embedding.
func fromChromaQueryResult(res chroma.QueryResult) []Document {
	docs := []Document{}
	idGroups := res.GetIDGroups()
	if len(idGroups) == 0 {
		return docs
	}

	var texts chroma.Documents
	if g := res.GetDocumentsGroups(); len(g) > 0 {
		texts = g[0]
	}
	var metas chroma.DocumentMetadatas
	if g := res.GetMetadatasGroups(); len(g) > 0 {
		metas = g[0]
	}

	for i, id := range idGroups[0] {
		d := Document{ID: string(id), Metadata: Metadata{}}
		if i < len(texts) && texts[i] != nil {
			d.Content = texts[i].ContentString()
		}
		if i < len(metas) && metas[i] != nil {
			d.Metadata = fromChromaMetadata(metas[i])
		}
		docs = append(docs, d)
	}
	return docs
}

// chromaMetadataReader is the read side shared by chroma-go's collection
// and document metadata.
type chromaMetadataReader interface {
	Keys() []string
	GetString(key string) (string, bool)
	GetBool(key string) (bool, bool)
	GetInt(key string) (int64, bool)
	GetFloat(key string) (float64, bool)
}

// fromChromaMetadata converts chroma-go metadata to Metadata. Query results
// carry every number as a float; whole values are restored to integers.
func fromChromaMetadata(m any) Metadata {
	out := Metadata{}
	r, ok := m.(chromaMetadataReader)
	if !ok {
		return out
	}
	for _, k := range r.Keys() {
		if v, ok := r.GetString(k); ok {
			out[k] = v
		} else if v, ok := r.GetBool(k); ok {
			out[k] = v
		} else if v, ok := r.GetInt(k); ok {
			out[k] = v
		} else if v, ok := r.GetFloat(k); ok {
			if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
				out[k] = int64(v)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

// chromaMetadata flattens metadata to the scalar values Chroma accepts.
// Nested values are stored as JSON strings.
func chromaMetadata(m Metadata) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m.Normalize() {
		switch v.(type) {
		case string, int64, float64, bool:
			out[k] = v
		case nil:
		default:
			out[k] = scalarString(v)
		}
	}
	return out
}

var _ Store = (*ChromaStore)(nil)
