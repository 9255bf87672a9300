// Package ingest loads PDF files, splits their text into overlapping chunks
// and writes the chunks to a vector store collection.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/ragdocs/internal/config"
	"github.com/fyrsmithlabs/ragdocs/internal/logging"
	"github.com/fyrsmithlabs/ragdocs/internal/vectorstore"
)

var (
	// ErrNoFiles indicates a request without input files.
	ErrNoFiles = errors.New("no files to ingest")

	// ErrInvalidChunking indicates chunk size or overlap out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrNoText indicates that no chunk could be produced from the files.
	ErrNoText = errors.New("no text extracted from files")
)

// Request describes one ingestion run.
type Request struct {
	Files          []string
	CollectionName string
	Description    string
	Source         string
	Language       string
	DocType        string
	ChunkSize      int
	ChunkOverlap   int
}

// RequestFromConfig returns a Request for files using the configured
// collection and splitter settings.
func RequestFromConfig(cfg config.IngestConfig, files []string) Request {
	return Request{
		Files:          files,
		CollectionName: cfg.Collection,
		Description:    cfg.Description,
		Source:         cfg.Source,
		Language:       cfg.Language,
		DocType:        cfg.DocType,
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
	}
}

// Validate checks the request before any file is read.
func (r Request) Validate() error {
	if len(r.Files) == 0 {
		return ErrNoFiles
	}
	for i, f := range r.Files {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: file %d has an empty path", ErrNoFiles, i)
		}
	}
	if err := vectorstore.ValidateCollectionName(r.CollectionName); err != nil {
		return err
	}
	if r.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunking, r.ChunkSize)
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrInvalidChunking, r.ChunkSize, r.ChunkOverlap)
	}
	return nil
}

// collectionMetadata is stored once, when the collection is created.
func (r Request) collectionMetadata() vectorstore.Metadata {
	return vectorstore.Metadata{
		"description": r.Description,
		"source":      r.Source,
		"language":    r.Language,
		"type":        r.DocType,
	}
}

// Status reports a successful run.
type Status struct {
	Collection string
	Added      int
}

func (s Status) String() string {
	return fmt.Sprintf("Successfully added %d documents to the vector store '%s'.", s.Added, s.Collection)
}

// Connector opens a store handle.
type Connector interface {
	Connect(ctx context.Context) (vectorstore.Store, error)
}

// Pipeline runs ingestion requests.
type Pipeline struct {
	connector   Connector
	loader      Loader
	logger      *logging.Logger
	concurrency int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLoader replaces the PDF loader.
func WithLoader(l Loader) Option {
	return func(p *Pipeline) {
		p.loader = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithConcurrency limits how many files are loaded at once. Default: 4
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// NewPipeline creates a Pipeline writing through connector.
func NewPipeline(connector Connector, opts ...Option) *Pipeline {
	p := &Pipeline{
		connector:   connector,
		loader:      PDFLoader{},
		logger:      logging.NewNop(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process loads every file, splits each file's text, and writes all chunks
// to the collection in one batch. Any failure aborts the run before anything
// is written, except that the collection may already have been created.
func (p *Pipeline) Process(ctx context.Context, req Request) (status Status, err error) {
	start := time.Now()
	defer func() {
		RunDuration.Observe(time.Since(start).Seconds())
		result := "success"
		if err != nil {
			result = "error"
		}
		RunsTotal.WithLabelValues(result).Inc()
	}()

	if err := req.Validate(); err != nil {
		return Status{}, err
	}

	p.logger.Info(ctx, "ingestion started",
		zap.String("collection", req.CollectionName),
		zap.Int("files", len(req.Files)),
		zap.Int("chunk_size", req.ChunkSize),
		zap.Int("chunk_overlap", req.ChunkOverlap),
	)

	files, err := p.loadAll(ctx, req.Files)
	if err != nil {
		return Status{}, err
	}

	docs, err := split(files, req.ChunkSize, req.ChunkOverlap)
	if err != nil {
		return Status{}, err
	}
	if len(docs) == 0 {
		return Status{}, ErrNoText
	}

	store, err := p.connector.Connect(ctx)
	if err != nil {
		return Status{}, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			p.logger.Debug(ctx, "closing store", zap.Error(cerr))
		}
	}()

	if _, err := store.GetOrCreateCollection(ctx, req.CollectionName, req.collectionMetadata()); err != nil {
		return Status{}, fmt.Errorf("preparing collection %q: %w", req.CollectionName, err)
	}
	if err := store.AddDocuments(ctx, req.CollectionName, docs); err != nil {
		return Status{}, fmt.Errorf("writing %d chunks to %q: %w", len(docs), req.CollectionName, err)
	}

	ChunksTotal.Add(float64(len(docs)))
	status = Status{Collection: req.CollectionName, Added: len(docs)}
	p.logger.Info(ctx, "ingestion finished",
		zap.String("collection", req.CollectionName),
		zap.Int("chunks", len(docs)),
		zap.Duration("duration", time.Since(start)),
	)
	return status, nil
}

// loadedFile is one input file with its pages.
type loadedFile struct {
	path  string
	pages []Page
}

// loadAll loads the files concurrently and returns them in input order.
// The first failure cancels the remaining loads.
func (p *Pipeline) loadAll(ctx context.Context, paths []string) ([]loadedFile, error) {
	files := make([]loadedFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			pages, err := p.loader.Load(gctx, path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			FilesTotal.Inc()
			p.logger.Debug(gctx, "loaded file", zap.String("path", path), zap.Int("pages", len(pages)))
			files[i] = loadedFile{path: path, pages: pages}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// split joins the pages of each file with a newline and splits the text
// with a recursive character splitter. Each chunk gets a new UUID.
func split(files []loadedFile, chunkSize, chunkOverlap int) ([]vectorstore.Document, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	var docs []vectorstore.Document
	for _, f := range files {
		contents := make([]string, len(f.pages))
		for i, page := range f.pages {
			contents[i] = page.Content
		}
		text := strings.Join(contents, "\n")

		if strings.TrimSpace(text) == "" {
			continue
		}

		chunks, err := splitter.SplitText(text)
		if err != nil {
			return nil, fmt.Errorf("splitting %s: %w", f.path, err)
		}
		for i, chunk := range chunks {
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			docs = append(docs, vectorstore.Document{
				ID:      uuid.NewString(),
				Content: chunk,
				Metadata: vectorstore.Metadata{
					"source":      f.path,
					"total_pages": len(f.pages),
					"chunk_index": i,
				},
			})
		}
	}
	return docs, nil
}
