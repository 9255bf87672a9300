package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdocs/internal/config"
	"github.com/fyrsmithlabs/ragdocs/internal/embeddings"
	"github.com/fyrsmithlabs/ragdocs/internal/vectorstore"
)

type cli struct {
	store *vectorstore.ChromemStore
	env   string
}

// newCLI isolates configuration from the host: HOME points at an empty
// directory and no dotenv file exists.
func newCLI(t *testing.T, configured bool) *cli {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("STORE_PROVIDER", "chromem")
	t.Setenv("LOG_LEVEL", "error")
	if configured {
		t.Setenv("STORE_HOST", "localhost")
		t.Setenv("STORE_PORT", "8000")
	}

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, embeddings.NewTestEmbedder(16), nil)
	require.NoError(t, err)
	return &cli{store: store, env: filepath.Join(home, "missing.env")}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{dialer: func(context.Context, *config.Config, *zap.Logger) (vectorstore.Store, error) {
		return vectorstore.Nop(c.store), nil
	}}
	root := a.rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", c.env}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) seed(t *testing.T, name string, contents ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := c.store.GetOrCreateCollection(ctx, name, vectorstore.Metadata{"type": "PDF"})
	require.NoError(t, err)
	docs := make([]vectorstore.Document, len(contents))
	for i, content := range contents {
		docs[i] = vectorstore.Document{
			ID:       name + "-" + content,
			Content:  content,
			Metadata: vectorstore.Metadata{"chunk_index": i},
		}
	}
	if len(docs) > 0 {
		require.NoError(t, c.store.AddDocuments(ctx, name, docs))
	}
}

func TestCLI_Unavailable(t *testing.T) {
	c := newCLI(t, false)

	testCases := []struct {
		name string
		args []string
	}{
		{name: "collections", args: []string{"collections"}},
		{name: "info", args: []string{"info", "docs"}},
		{name: "count", args: []string{"count", "docs"}},
		{name: "query", args: []string{"query", "docs", "hello"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := c.run(t, tc.args...)
			assert.ErrorIs(t, err, errReported)
			assert.JSONEq(t, `{"error":"Chroma client unavailable."}`, out)
		})
	}
}

func TestCLI_Collections(t *testing.T) {
	c := newCLI(t, true)
	c.seed(t, "alpha")
	c.seed(t, "beta")

	out, err := c.run(t, "collections", "--page-size", "1", "--page", "2")
	require.NoError(t, err)

	var got []vectorstore.Collection
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "beta", got[0].Name)
}

func TestCLI_InfoAndCount(t *testing.T) {
	c := newCLI(t, true)
	c.seed(t, "alpha", "one", "two")

	out, err := c.run(t, "info", "alpha")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"alpha","metadata":{"type":"PDF"}}`, out)

	out, err = c.run(t, "count", "alpha")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":2}`, out)

	out, err = c.run(t, "count", "missing")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "Failed to get document count: ")
}

func TestCLI_Query(t *testing.T) {
	c := newCLI(t, true)
	c.seed(t, "alpha", "one", "two", "three", "four")

	out, err := c.run(t, "query", "alpha", "two", "-k", "2")
	require.NoError(t, err)
	var docs []vectorstore.Document
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	assert.Len(t, docs, 2)

	out, err = c.run(t, "query", "alpha", "anything", "-k", "4", "--filter", "chunk_index=2")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "three", docs[0].Content)

	_, err = c.run(t, "query", "alpha", "x", "--filter", "novalue")
	assert.ErrorContains(t, err, "want key=value")
}

func TestCLI_IngestValidation(t *testing.T) {
	c := newCLI(t, true)

	_, err := c.run(t, "ingest", "--chunk-size", "100", "--chunk-overlap", "100", "a.pdf")
	assert.ErrorContains(t, err, "chunk overlap must be in [0, 100)")

	_, err = c.run(t, "ingest", filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorContains(t, err, "missing.pdf")

	_, err = c.run(t, "ingest")
	assert.Error(t, err)
}

func TestCLI_InvalidConfig(t *testing.T) {
	c := newCLI(t, true)
	t.Setenv("STORE_PROVIDER", "mongo")

	_, err := c.run(t, "collections")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestParseFilter(t *testing.T) {
	testCases := []struct {
		name    string
		pairs   []string
		want    vectorstore.Metadata
		wantErr bool
	}{
		{name: "none", pairs: nil, want: nil},
		{name: "string", pairs: []string{"source=a.pdf"}, want: vectorstore.Metadata{"source": "a.pdf"}},
		{name: "int", pairs: []string{"chunk_index=3"}, want: vectorstore.Metadata{"chunk_index": int64(3)}},
		{name: "bool", pairs: []string{"draft=true"}, want: vectorstore.Metadata{"draft": true}},
		{name: "value with equals", pairs: []string{"q=a=b"}, want: vectorstore.Metadata{"q": "a=b"}},
		{name: "missing value separator", pairs: []string{"source"}, wantErr: true},
		{name: "empty key", pairs: []string{"=x"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseFilter(tc.pairs)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
