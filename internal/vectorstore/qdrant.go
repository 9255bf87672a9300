package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragdocs/internal/embeddings"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const providerQdrant = "qdrant"

// Reserved payload keys.
const (
	qdrantContentKey = "document"
	qdrantIDKey      = "id"
	qdrantMetaFlag   = "_ragdocs_meta"
)

// qdrantNamespace derives point IDs for document IDs that are not UUIDs
// and for the collection metadata point.
var qdrantNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/fyrsmithlabs/ragdocs"))

// qdrantMetaPointID holds collection metadata. Qdrant has no per-collection
// metadata, so it is stored on a point excluded from counts and searches.
var qdrantMetaPointID = uuid.NewSHA1(qdrantNamespace, []byte("collection-metadata")).String()

// QdrantConfig holds configuration for a Qdrant server.
type QdrantConfig struct {
	// Host and Port locate the gRPC API (6334, not the 6333 REST port).
	Host string
	Port int

	APIKey string
	UseTLS bool

	// VectorSize is the dimensionality of new collections.
	// MUST match the embedder's output. Default: 768
	VectorSize int

	// Timeout bounds each operation. Default: 30s
	Timeout time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.VectorSize == 0 {
		c.VectorSize = 768
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: qdrant port must be 1-65535, got %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore implements Store using Qdrant's gRPC API.
type QdrantStore struct {
	client   *qdrant.Client
	config   QdrantConfig
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// NewQdrantStore connects to Qdrant and verifies the server is healthy.
func NewQdrantStore(ctx context.Context, config QdrantConfig, embedder embeddings.Embedder, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	s := &QdrantStore{client: client, config: config, embedder: embedder, logger: logger}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check: %w", err)
	}
	return s, nil
}

func (s *QdrantStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.Timeout)
}

// mapQdrantError converts gRPC NotFound to ErrCollectionNotFound.
func mapQdrantError(name string, err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
		return fmt.Errorf("collection %q: %w", name, ErrCollectionNotFound)
	}
	return err
}

// excludeMeta is the condition hiding the metadata point.
func excludeMeta() *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   qdrantMetaFlag,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: true}},
			},
		},
	}
}

// collectionMetadata reads the metadata point of name.
func (s *QdrantStore) collectionMetadata(ctx context.Context, name string) (Metadata, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: name,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(qdrantMetaPointID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, mapQdrantError(name, err)
	}
	if len(points) == 0 {
		return Metadata{}, nil
	}
	meta := fromQdrantPayload(points[0].GetPayload())
	delete(meta, qdrantMetaFlag)
	return meta, nil
}

// ListCollections returns all collections in server order.
func (s *QdrantStore) ListCollections(ctx context.Context) ([]Collection, error) {
	ctx, o := startOp(ctx, providerQdrant, "list_collections")
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, o.end(fmt.Errorf("listing collections: %w", err))
	}
	out := make([]Collection, 0, len(names))
	for _, name := range names {
		meta, err := s.collectionMetadata(ctx, name)
		if err != nil {
			return nil, o.end(fmt.Errorf("reading metadata of %q: %w", name, err))
		}
		out = append(out, Collection{Name: name, Metadata: meta})
	}
	return out, o.end(nil)
}

// GetCollection returns one collection by name.
func (s *QdrantStore) GetCollection(ctx context.Context, name string) (Collection, error) {
	ctx, o := startOp(ctx, providerQdrant, "get_collection", attribute.String("collection", name))
	if err := ValidateCollectionName(name); err != nil {
		return Collection{}, o.end(err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.GetCollectionInfo(ctx, name); err != nil {
		return Collection{}, o.end(mapQdrantError(name, err))
	}
	meta, err := s.collectionMetadata(ctx, name)
	if err != nil {
		return Collection{}, o.end(err)
	}
	return Collection{Name: name, Metadata: meta}, o.end(nil)
}

// CountDocuments returns the exact number of document points.
func (s *QdrantStore) CountDocuments(ctx context.Context, name string) (int, error) {
	ctx, o := startOp(ctx, providerQdrant, "count", attribute.String("collection", name))
	if err := ValidateCollectionName(name); err != nil {
		return 0, o.end(err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Filter:         &qdrant.Filter{MustNot: []*qdrant.Condition{excludeMeta()}},
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, o.end(mapQdrantError(name, err))
	}
	return int(n), o.end(nil)
}

// GetOrCreateCollection creates a cosine collection with metadata unless it
// exists. Metadata of an existing collection is left unchanged.
func (s *QdrantStore) GetOrCreateCollection(ctx context.Context, name string, metadata Metadata) (Collection, error) {
	ctx, o := startOp(ctx, providerQdrant, "get_or_create_collection", attribute.String("collection", name))
	if err := ValidateCollectionName(name); err != nil {
		return Collection{}, o.end(err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return Collection{}, o.end(fmt.Errorf("checking collection %q: %w", name, err))
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.config.VectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if st, ok := status.FromError(err); err != nil && !(ok && st.Code() == grpccodes.AlreadyExists) {
			return Collection{}, o.end(fmt.Errorf("creating collection %q: %w", name, err))
		}
		if err == nil {
			if err := s.writeMetadata(ctx, name, metadata); err != nil {
				return Collection{}, o.end(err)
			}
			s.logger.Info("created qdrant collection", zap.String("collection", name))
		}
	}

	meta, err := s.collectionMetadata(ctx, name)
	if err != nil {
		return Collection{}, o.end(err)
	}
	return Collection{Name: name, Metadata: meta}, o.end(nil)
}

func (s *QdrantStore) writeMetadata(ctx context.Context, name string, metadata Metadata) error {
	payload := toQdrantPayload(metadata)
	payload[qdrantMetaFlag] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: true}}

	vector := make([]float32, s.config.VectorSize)
	vector[0] = 1

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(qdrantMetaPointID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("writing metadata of %q: %w", name, err)
	}
	return nil
}

// qdrantPointID returns id if it is a UUID, otherwise a UUID derived from it.
func qdrantPointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(qdrantNamespace, []byte(id)).String()
}

// AddDocuments embeds docs and upserts them in one batch.
func (s *QdrantStore) AddDocuments(ctx context.Context, collection string, docs []Document) error {
	ctx, o := startOp(ctx, providerQdrant, "add_documents",
		attribute.String("collection", collection),
		attribute.Int("document_count", len(docs)),
	)
	if len(docs) == 0 {
		return o.end(ErrEmptyDocuments)
	}
	if err := ValidateCollectionName(collection); err != nil {
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

	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		payload := toQdrantPayload(d.Metadata)
		payload[qdrantContentKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: d.Content}}
		payload[qdrantIDKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: d.ID}}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(qdrantPointID(d.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return o.end(fmt.Errorf("upserting into %q: %w", collection, mapQdrantError(collection, err)))
	}
	return o.end(nil)
}

// SearchInCollection returns up to k nearest documents.
func (s *QdrantStore) SearchInCollection(ctx context.Context, collection, query string, k int, filter Metadata) ([]Document, error) {
	ctx, o := startOp(ctx, providerQdrant, "search",
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)
	if err := validateSearch(collection, query, k); err != nil {
		return nil, o.end(err)
	}

	qf, err := qdrantFilter(filter)
	if err != nil {
		return nil, o.end(err)
	}
	if qf == nil {
		qf = &qdrant.Filter{}
	}
	qf.MustNot = append(qf.MustNot, excludeMeta())

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, o.end(fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, o.end(fmt.Errorf("searching %q: %w", collection, mapQdrantError(collection, err)))
	}

	docs := make([]Document, len(points))
	for i, p := range points {
		meta := fromQdrantPayload(p.GetPayload())
		doc := Document{ID: p.GetId().GetUuid()}
		if c, ok := meta[qdrantContentKey].(string); ok {
			doc.Content = c
		}
		if id, ok := meta[qdrantIDKey].(string); ok && id != "" {
			doc.ID = id
		}
		delete(meta, qdrantContentKey)
		delete(meta, qdrantIDKey)
		doc.Metadata = meta
		docs[i] = doc
	}
	return docs, o.end(nil)
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if err := s.client.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// toQdrantPayload converts metadata to payload values. Nested values are
// stored as JSON strings.
func toQdrantPayload(m Metadata) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(m)+2)
	for k, v := range m.Normalize() {
		switch val := v.(type) {
		case string:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case bool:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		case nil:
		default:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: scalarString(val)}}
		}
	}
	return payload
}

func fromQdrantPayload(payload map[string]*qdrant.Value) Metadata {
	out := make(Metadata, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = val.BoolValue
		}
	}
	return out
}

var _ Store = (*QdrantStore)(nil)
