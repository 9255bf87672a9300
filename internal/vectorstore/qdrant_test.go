package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/ragdocs/internal/embeddings"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeQdrant is an in-memory Qdrant gRPC server covering the calls
// QdrantStore makes.
type fakeQdrant struct {
	mu          sync.Mutex
	order       []string
	collections map[string]*fakeQdrantCollection
}

type fakeQdrantCollection struct {
	vectorSize uint64
	ids        []string
	points     map[string]*qdrant.PointStruct
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, int) {
	t.Helper()
	f := &fakeQdrant{collections: map[string]*fakeQdrantCollection{}}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	qdrant.RegisterQdrantServer(srv, fakeQdrantService{})
	qdrant.RegisterCollectionsServer(srv, fakeQdrantCollections{f: f})
	qdrant.RegisterPointsServer(srv, fakeQdrantPoints{f: f})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return f, lis.Addr().(*net.TCPAddr).Port
}

func (f *fakeQdrant) collection(name string) (*fakeQdrantCollection, error) {
	c, ok := f.collections[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Collection `%s` doesn't exist!", name)
	}
	return c, nil
}

func (f *fakeQdrant) pointCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.collections[name].ids)
}

type fakeQdrantService struct {
	qdrant.UnimplementedQdrantServer
}

func (fakeQdrantService) HealthCheck(context.Context, *qdrant.HealthCheckRequest) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{Title: "qdrant", Version: "1.16.0"}, nil
}

type fakeQdrantCollections struct {
	qdrant.UnimplementedCollectionsServer
	f *fakeQdrant
}

func (s fakeQdrantCollections) List(context.Context, *qdrant.ListCollectionsRequest) (*qdrant.ListCollectionsResponse, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	resp := &qdrant.ListCollectionsResponse{}
	for _, name := range s.f.order {
		resp.Collections = append(resp.Collections, &qdrant.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (s fakeQdrantCollections) Get(_ context.Context, req *qdrant.GetCollectionInfoRequest) (*qdrant.GetCollectionInfoResponse, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if _, err := s.f.collection(req.GetCollectionName()); err != nil {
		return nil, err
	}
	return &qdrant.GetCollectionInfoResponse{Result: &qdrant.CollectionInfo{}}, nil
}

func (s fakeQdrantCollections) CollectionExists(_ context.Context, req *qdrant.CollectionExistsRequest) (*qdrant.CollectionExistsResponse, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	_, ok := s.f.collections[req.GetCollectionName()]
	return &qdrant.CollectionExistsResponse{Result: &qdrant.CollectionExists{Exists: ok}}, nil
}

func (s fakeQdrantCollections) Create(_ context.Context, req *qdrant.CreateCollection) (*qdrant.CollectionOperationResponse, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	name := req.GetCollectionName()
	if _, ok := s.f.collections[name]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "Collection `%s` already exists!", name)
	}
	s.f.collections[name] = &fakeQdrantCollection{
		vectorSize: req.GetVectorsConfig().GetParams().GetSize(),
		points:     map[string]*qdrant.PointStruct{},
	}
	s.f.order = append(s.f.order, name)
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

type fakeQdrantPoints struct {
	qdrant.UnimplementedPointsServer
	f *fakeQdrant
}

func (s fakeQdrantPoints) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.PointsOperationResponse, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	c, err := s.f.collection(req.GetCollectionName())
	if err != nil {
		return nil, err
	}
	for _, p := range req.GetPoints() {
		data := p.GetVectors().GetVector().GetDense().GetData()
		if uint64(len(data)) != c.vectorSize {
			return nil, status.Errorf(codes.InvalidArgument, "wrong vector dimension: expected %d, got %d", c.vectorSize, len(data))
		}
		id := p.GetId().GetUuid()
		if _, ok := c.points[id]; !ok {
			c.ids = append(c.ids, id)
		}
		c.points[id] = p
	}
	return &qdrant.PointsOperationResponse{Result: &qdrant.UpdateResult{Status: qdrant.UpdateStatus_Completed}}, nil
}

func (s fakeQdrantPoints) Get(_ context.Context, req *qdrant.GetPoints) (*qdrant.GetResponse, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	c, err := s.f.collection(req.GetCollectionName())
	if err != nil {
		return nil, err
	}
	resp := &qdrant.GetResponse{}
	for _, id := range req.GetIds() {
		if p, ok := c.points[id.GetUuid()]; ok {
			resp.Result = append(resp.Result, &qdrant.RetrievedPoint{Id: p.GetId(), Payload: p.GetPayload()})
		}
	}
	return resp, nil
}

func (s fakeQdrantPoints) Count(_ context.Context, req *qdrant.CountPoints) (*qdrant.CountResponse, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	c, err := s.f.collection(req.GetCollectionName())
	if err != nil {
		return nil, err
	}
	var n uint64
	for _, id := range c.ids {
		if matchesQdrantFilter(c.points[id].GetPayload(), req.GetFilter()) {
			n++
		}
	}
	return &qdrant.CountResponse{Result: &qdrant.CountResult{Count: n}}, nil
}

func (s fakeQdrantPoints) Query(_ context.Context, req *qdrant.QueryPoints) (*qdrant.QueryResponse, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	c, err := s.f.collection(req.GetCollectionName())
	if err != nil {
		return nil, err
	}
	query := req.GetQuery().GetNearest().GetDense().GetData()

	var hits []*qdrant.ScoredPoint
	for _, id := range c.ids {
		p := c.points[id]
		if !matchesQdrantFilter(p.GetPayload(), req.GetFilter()) {
			continue
		}
		var dot float32
		for i, x := range p.GetVectors().GetVector().GetDense().GetData() {
			dot += x * query[i]
		}
		hits = append(hits, &qdrant.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: dot})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if limit := int(req.GetLimit()); limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return &qdrant.QueryResponse{Result: hits}, nil
}

// matchesQdrantFilter supports the keyword, integer and boolean field
// matches QdrantStore sends.
func matchesQdrantFilter(payload map[string]*qdrant.Value, filter *qdrant.Filter) bool {
	for _, c := range filter.GetMust() {
		if !matchesQdrantCondition(payload, c) {
			return false
		}
	}
	for _, c := range filter.GetMustNot() {
		if matchesQdrantCondition(payload, c) {
			return false
		}
	}
	return true
}

func matchesQdrantCondition(payload map[string]*qdrant.Value, c *qdrant.Condition) bool {
	field := c.GetField()
	v := payload[field.GetKey()]
	switch m := field.GetMatch().GetMatchValue().(type) {
	case *qdrant.Match_Keyword:
		s, ok := v.GetKind().(*qdrant.Value_StringValue)
		return ok && s.StringValue == m.Keyword
	case *qdrant.Match_Integer:
		i, ok := v.GetKind().(*qdrant.Value_IntegerValue)
		return ok && i.IntegerValue == m.Integer
	case *qdrant.Match_Boolean:
		b, ok := v.GetKind().(*qdrant.Value_BoolValue)
		return ok && b.BoolValue == m.Boolean
	}
	return false
}

func newTestQdrant(t *testing.T) (*QdrantStore, *fakeQdrant) {
	t.Helper()
	fake, port := newFakeQdrant(t)
	store, err := NewQdrantStore(context.Background(),
		QdrantConfig{Host: "127.0.0.1", Port: port, VectorSize: 32},
		embeddings.NewTestEmbedder(32), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, fake
}

func TestMapQdrantError(t *testing.T) {
	notFound := status.Error(codes.NotFound, "Collection `kb` doesn't exist!")
	unavailable := status.Error(codes.Unavailable, "connection refused")
	plain := errors.New("boom")

	testCases := []struct {
		name         string
		err          error
		wantNotFound bool
		wantSame     bool
	}{
		{name: "nil", err: nil},
		{name: "grpc not found", err: notFound, wantNotFound: true},
		{name: "wrapped not found", err: fmt.Errorf("Get() failed: kb: %w", notFound), wantNotFound: true},
		{name: "other grpc code", err: unavailable, wantSame: true},
		{name: "non grpc error", err: plain, wantSame: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapQdrantError("kb", tc.err)
			switch {
			case tc.err == nil:
				assert.NoError(t, got)
			case tc.wantNotFound:
				assert.ErrorIs(t, got, ErrCollectionNotFound)
				assert.Contains(t, got.Error(), `"kb"`)
			case tc.wantSame:
				assert.Same(t, tc.err, got)
				assert.NotErrorIs(t, got, ErrCollectionNotFound)
			}
		})
	}
}

func TestQdrantPointID(t *testing.T) {
	const id = "0b7e4f0c-6a55-4f7a-9d2b-3e0e1c8b9a10"

	testCases := []struct {
		name string
		in   string
	}{
		{name: "plain string", in: "doc-1"},
		{name: "numeric string", in: "42"},
		{name: "empty", in: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			derived := qdrantPointID(tc.in)
			assert.NotEqual(t, tc.in, derived)
			assert.Equal(t, derived, qdrantPointID(tc.in), "derivation is stable")
			assert.NotEqual(t, qdrantMetaPointID, derived)
			assert.Len(t, derived, len(id))
		})
	}

	t.Run("uuid passes through", func(t *testing.T) {
		assert.Equal(t, id, qdrantPointID(id))
	})

	t.Run("distinct inputs give distinct ids", func(t *testing.T) {
		assert.NotEqual(t, qdrantPointID("doc-1"), qdrantPointID("doc-2"))
	})
}

func TestQdrantStore_Collections(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestQdrant(t)

	created, err := store.GetOrCreateCollection(ctx, "manuals", Metadata{"description": "Product manuals", "version": 2})
	require.NoError(t, err)
	assert.Equal(t, Collection{Name: "manuals", Metadata: Metadata{"description": "Product manuals", "version": int64(2)}}, created)

	// second call keeps the original metadata
	again, err := store.GetOrCreateCollection(ctx, "manuals", Metadata{"description": "changed"})
	require.NoError(t, err)
	assert.Equal(t, created, again)

	_, err = store.GetOrCreateCollection(ctx, "empty", nil)
	require.NoError(t, err)

	cols, err := store.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, created, cols[0])
	assert.Equal(t, Collection{Name: "empty", Metadata: Metadata{}}, cols[1])

	got, err := store.GetCollection(ctx, "manuals")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	t.Run("metadata point is not counted", func(t *testing.T) {
		assert.Equal(t, 1, fake.pointCount("manuals"))
		n, err := store.CountDocuments(ctx, "manuals")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := store.GetCollection(ctx, "missing")
		assert.ErrorIs(t, err, ErrCollectionNotFound)

		_, err = store.CountDocuments(ctx, "missing")
		assert.ErrorIs(t, err, ErrCollectionNotFound)

		err = store.AddDocuments(ctx, "missing", []Document{{ID: "1", Content: "x"}})
		assert.ErrorIs(t, err, ErrCollectionNotFound)

		_, err = store.SearchInCollection(ctx, "missing", "x", 1, nil)
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})
}

func TestQdrantStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestQdrant(t)

	_, err := store.GetOrCreateCollection(ctx, "kb", Metadata{"description": "kb"})
	require.NoError(t, err)

	const uuidID = "0b7e4f0c-6a55-4f7a-9d2b-3e0e1c8b9a10"
	docs := []Document{
		{ID: "doc-1", Content: "install the printer driver", Metadata: Metadata{"source": "printer.pdf", "chunk_index": 0}},
		{ID: "doc-2", Content: "configure wifi network", Metadata: Metadata{"source": "router.pdf", "chunk_index": 0}},
		{ID: uuidID, Content: "printer paper jam", Metadata: Metadata{"source": "printer.pdf", "chunk_index": 1}},
	}
	require.NoError(t, store.AddDocuments(ctx, "kb", docs))

	n, err := store.CountDocuments(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 4, fake.pointCount("kb"))

	t.Run("nearest first with original id", func(t *testing.T) {
		got, err := store.SearchInCollection(ctx, "kb", "wifi network", 1, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, Document{
			ID:       "doc-2",
			Content:  "configure wifi network",
			Metadata: Metadata{"source": "router.pdf", "chunk_index": int64(0)},
		}, got[0])
	})

	t.Run("metadata point never returned", func(t *testing.T) {
		got, err := store.SearchInCollection(ctx, "kb", "printer", 10, nil)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for _, d := range got {
			assert.NotContains(t, d.Metadata, qdrantMetaFlag)
			assert.NotContains(t, d.Metadata, "description")
		}
	})

	t.Run("filter restricts results", func(t *testing.T) {
		got, err := store.SearchInCollection(ctx, "kb", "printer", 3, Metadata{"source": "printer.pdf", "chunk_index": 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, uuidID, got[0].ID)
		assert.Equal(t, "printer paper jam", got[0].Content)
	})

	t.Run("upsert by id replaces", func(t *testing.T) {
		require.NoError(t, store.AddDocuments(ctx, "kb", []Document{{ID: "doc-1", Content: "install the printer driver v2"}}))
		n, err := store.CountDocuments(ctx, "kb")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestQdrantStore_CollectionMetadata(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestQdrant(t)

	_, err := store.GetOrCreateCollection(ctx, "kb", nil)
	require.NoError(t, err)

	t.Run("round trip strips the marker", func(t *testing.T) {
		require.NoError(t, store.writeMetadata(ctx, "kb", Metadata{
			"description": "docs",
			"pages":       12,
			"ratio":       0.5,
			"public":      true,
			"tags":        []string{"a", "b"},
		}))
		meta, err := store.collectionMetadata(ctx, "kb")
		require.NoError(t, err)
		assert.Equal(t, Metadata{
			"description": "docs",
			"pages":       int64(12),
			"ratio":       0.5,
			"public":      true,
			"tags":        `["a","b"]`,
		}, meta)
	})

	t.Run("rewrite replaces the single metadata point", func(t *testing.T) {
		require.NoError(t, store.writeMetadata(ctx, "kb", Metadata{"description": "v2"}))
		meta, err := store.collectionMetadata(ctx, "kb")
		require.NoError(t, err)
		assert.Equal(t, Metadata{"description": "v2"}, meta)
		assert.Equal(t, 1, fake.pointCount("kb"))
	})

	t.Run("collection without metadata point", func(t *testing.T) {
		fake.mu.Lock()
		fake.collections["bare"] = &fakeQdrantCollection{vectorSize: 32, points: map[string]*qdrant.PointStruct{}}
		fake.order = append(fake.order, "bare")
		fake.mu.Unlock()

		meta, err := store.collectionMetadata(ctx, "bare")
		require.NoError(t, err)
		assert.Equal(t, Metadata{}, meta)
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := store.collectionMetadata(ctx, "missing")
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})
}

func TestNewQdrantStore_Validation(t *testing.T) {
	emb := embeddings.NewTestEmbedder(8)
	ctx := context.Background()

	_, err := NewQdrantStore(ctx, QdrantConfig{Host: "127.0.0.1", Port: 6334}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewQdrantStore(ctx, QdrantConfig{Port: 6334}, emb, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
