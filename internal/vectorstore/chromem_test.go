package vectorstore_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/ragdocs/internal/embeddings"
	"github.com/fyrsmithlabs/ragdocs/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestChromem(t *testing.T) *vectorstore.ChromemStore {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, embeddings.NewTestEmbedder(64), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewChromemStore_RequiresEmbedder(t *testing.T) {
	_, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestChromemStore_Collections(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)

	cols, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.NotNil(t, cols)
	assert.Empty(t, cols)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := store.GetOrCreateCollection(ctx, name, vectorstore.Metadata{"description": name + " docs"})
		require.NoError(t, err)
	}

	cols, err = store.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "alpha", cols[0].Name)
	assert.Equal(t, "mid", cols[1].Name)
	assert.Equal(t, "zeta", cols[2].Name)
	assert.Equal(t, "alpha docs", cols[0].Metadata["description"])

	_, err = store.GetOrCreateCollection(ctx, "alpha", vectorstore.Metadata{"description": "changed"})
	require.NoError(t, err)
	got, err := store.GetCollection(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha docs", got.Metadata["description"])

	_, err = store.GetCollection(ctx, "missing")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	_, err = store.CountDocuments(ctx, "missing")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	_, err = store.GetOrCreateCollection(ctx, "bad name", nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)

	_, err := store.GetOrCreateCollection(ctx, "kb", nil)
	require.NoError(t, err)

	docs := []vectorstore.Document{
		{ID: "1", Content: "install the printer driver", Metadata: vectorstore.Metadata{"source": "printer.pdf", "chunk_index": 0}},
		{ID: "2", Content: "configure wifi network", Metadata: vectorstore.Metadata{"source": "router.pdf", "chunk_index": 0}},
		{ID: "3", Content: "printer paper jam", Metadata: vectorstore.Metadata{"source": "printer.pdf", "chunk_index": 1}},
	}
	require.NoError(t, store.AddDocuments(ctx, "kb", docs))

	n, err := store.CountDocuments(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	t.Run("nearest first", func(t *testing.T) {
		got, err := store.SearchInCollection(ctx, "kb", "wifi network", 1, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "configure wifi network", got[0].Content)
		assert.Equal(t, vectorstore.Metadata{"source": "router.pdf", "chunk_index": int64(0)}, got[0].Metadata)
	})

	t.Run("k larger than collection returns all", func(t *testing.T) {
		got, err := store.SearchInCollection(ctx, "kb", "printer", 3, nil)
		require.NoError(t, err)
		assert.Len(t, got, 3)

		got, err = store.SearchInCollection(ctx, "kb", "printer", 50, nil)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("filter", func(t *testing.T) {
		got, err := store.SearchInCollection(ctx, "kb", "printer", 3, vectorstore.Metadata{"source": "printer.pdf", "chunk_index": 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "printer paper jam", got[0].Content)
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := store.SearchInCollection(ctx, "nope", "printer", 3, nil)
		assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
	})
}

func TestChromemStore_StringMetadataKeepsType(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)

	_, err := store.GetOrCreateCollection(ctx, "kb", nil)
	require.NoError(t, err)

	meta := vectorstore.Metadata{"source": "a.pdf", "revision": "1", "draft": "true", "page": 4, "final": false}
	require.NoError(t, store.AddDocuments(ctx, "kb", []vectorstore.Document{
		{ID: "1", Content: "printer setup", Metadata: meta},
	}))

	got, err := store.SearchInCollection(ctx, "kb", "printer setup", 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, vectorstore.Metadata{
		"source":   "a.pdf",
		"revision": "1",
		"draft":    "true",
		"page":     int64(4),
		"final":    false,
	}, got[0].Metadata)

	got, err = store.SearchInCollection(ctx, "kb", "printer setup", 1, vectorstore.Metadata{"revision": "1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestChromemStore_SearchEmptyCollection(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem(t)

	_, err := store.GetOrCreateCollection(ctx, "empty", nil)
	require.NoError(t, err)

	got, err := store.SearchInCollection(ctx, "empty", "anything", 3, nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestChromemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := embeddings.NewTestEmbedder(32)

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: dir}, emb, nil)
	require.NoError(t, err)

	_, err = store.GetOrCreateCollection(ctx, "persisted", vectorstore.Metadata{"description": "kept", "version": 3})
	require.NoError(t, err)

	batch := make([]vectorstore.Document, 5)
	for i := range batch {
		batch[i] = vectorstore.Document{ID: fmt.Sprintf("d%d", i), Content: fmt.Sprintf("chunk number %d", i)}
	}
	require.NoError(t, store.AddDocuments(ctx, "persisted", batch))
	require.NoError(t, store.Close())

	info, err := os.Stat(filepath.Join(dir, "collections.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: dir}, emb, nil)
	require.NoError(t, err)

	col, err := reopened.GetCollection(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, vectorstore.Metadata{"description": "kept", "version": int64(3)}, col.Metadata)

	n, err := reopened.CountDocuments(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
