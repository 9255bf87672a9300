package query

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdocs/internal/logging"
	"github.com/fyrsmithlabs/ragdocs/internal/vectorstore"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	DefaultK        = 3
)

// Connector opens a store handle per operation.
type Connector interface {
	Connect(ctx context.Context) (vectorstore.Store, error)
}

// Service runs query operations. It holds no state besides its connector,
// so one Service is safe for concurrent use.
type Service struct {
	connector Connector
	logger    *logging.Logger
}

// NewService creates a Service. A nil logger disables logging.
func NewService(connector Connector, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{connector: connector, logger: logger}
}

// connect returns a store handle, or the Error to report. Connection
// failures other than an unconfigured store are reported under kind.
func (s *Service) connect(ctx context.Context, kind Kind) (vectorstore.Store, *Error) {
	store, err := s.connector.Connect(ctx)
	if errors.Is(err, vectorstore.ErrUnavailable) {
		s.logger.Debug(ctx, "store unavailable", zap.String("kind", string(kind)))
		return nil, unavailable()
	}
	if err != nil {
		s.logger.Warn(ctx, "store connection failed", zap.Error(err))
		return nil, failed(kind, err)
	}
	return store, nil
}

func (s *Service) release(ctx context.Context, store vectorstore.Store) {
	if err := store.Close(); err != nil {
		s.logger.Debug(ctx, "closing store", zap.Error(err))
	}
}

// ListCollections returns one page of collections in the store's listing
// order. Zero page or pageSize select the defaults (1 and 10). A page past
// the end yields an empty list.
func (s *Service) ListCollections(ctx context.Context, page, pageSize int) Result[[]vectorstore.Collection] {
	store, qerr := s.connect(ctx, KindListFailed)
	if qerr != nil {
		return fail[[]vectorstore.Collection](qerr)
	}
	defer s.release(ctx, store)

	if page == 0 {
		page = DefaultPage
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if page < 0 || pageSize < 0 {
		return fail[[]vectorstore.Collection](failed(KindListFailed,
			fmt.Errorf("page and page_size must be positive, got page=%d page_size=%d", page, pageSize)))
	}

	all, err := store.ListCollections(ctx)
	if err != nil {
		s.logger.Warn(ctx, "list collections failed", zap.Error(err))
		return fail[[]vectorstore.Collection](failed(KindListFailed, err))
	}

	out := []vectorstore.Collection{}
	start := (page - 1) * pageSize
	if start < len(all) {
		end := min(start+pageSize, len(all))
		for _, c := range all[start:end] {
			c.Metadata = c.Metadata.OrEmpty()
			out = append(out, c)
		}
	}

	s.logger.Debug(ctx, "listed collections",
		zap.Int("total", len(all)),
		zap.Int("page", page),
		zap.Int("page_size", pageSize),
		zap.Int("returned", len(out)),
	)
	return ok(out)
}

// GetCollectionInfo returns the name and metadata of one collection.
func (s *Service) GetCollectionInfo(ctx context.Context, name string) Result[vectorstore.Collection] {
	store, qerr := s.connect(ctx, KindGetFailed)
	if qerr != nil {
		return fail[vectorstore.Collection](qerr)
	}
	defer s.release(ctx, store)

	c, err := store.GetCollection(ctx, name)
	if err != nil {
		s.logger.Warn(ctx, "get collection failed", zap.String("collection", name), zap.Error(err))
		return fail[vectorstore.Collection](failed(KindGetFailed, err))
	}
	c.Metadata = c.Metadata.OrEmpty()
	return ok(c)
}

// GetCollectionCount returns the number of documents in a collection. A
// missing collection is an error, never a zero count.
func (s *Service) GetCollectionCount(ctx context.Context, name string) Result[Count] {
	store, qerr := s.connect(ctx, KindCountFailed)
	if qerr != nil {
		return fail[Count](qerr)
	}
	defer s.release(ctx, store)

	n, err := store.CountDocuments(ctx, name)
	if err != nil {
		s.logger.Warn(ctx, "count documents failed", zap.String("collection", name), zap.Error(err))
		return fail[Count](failed(KindCountFailed, err))
	}
	return ok(Count{Count: n})
}

// QueryRequest holds the inputs of QueryDocuments.
type QueryRequest struct {
	CollectionName string
	Query          string
	// K is the number of results; zero selects DefaultK.
	K int
	// Filter restricts results to documents whose metadata equals every entry.
	Filter vectorstore.Metadata
}

// QueryDocuments returns up to K documents most similar to Query. When the
// collection holds fewer than K documents, all of them are returned.
func (s *Service) QueryDocuments(ctx context.Context, req QueryRequest) Result[[]vectorstore.Document] {
	store, qerr := s.connect(ctx, KindQueryFailed)
	if qerr != nil {
		return fail[[]vectorstore.Document](qerr)
	}
	defer s.release(ctx, store)

	k := req.K
	if k == 0 {
		k = DefaultK
	}
	if k < 0 {
		return fail[[]vectorstore.Document](failed(KindQueryFailed, fmt.Errorf("k must be positive, got %d", k)))
	}

	docs, err := store.SearchInCollection(ctx, req.CollectionName, req.Query, k, req.Filter)
	if err != nil {
		s.logger.Warn(ctx, "query documents failed",
			zap.String("collection", req.CollectionName),
			zap.Int("k", k),
			zap.Error(err),
		)
		return fail[[]vectorstore.Document](failed(KindQueryFailed, err))
	}

	out := make([]vectorstore.Document, len(docs))
	for i, d := range docs {
		out[i] = vectorstore.Document{Content: d.Content, Metadata: d.Metadata.OrEmpty()}
	}
	s.logger.Debug(ctx, "queried documents",
		zap.String("collection", req.CollectionName),
		zap.Int("k", k),
		zap.Int("returned", len(out)),
	)
	return ok(out)
}
