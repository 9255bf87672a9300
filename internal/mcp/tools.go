package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdocs/internal/logging"
	"github.com/fyrsmithlabs/ragdocs/internal/query"
	"github.com/fyrsmithlabs/ragdocs/internal/vectorstore"
)

const (
	toolGetAllCollections  = "get_all_collections"
	toolGetCollectionInfo  = "get_collection_info"
	toolGetCollectionCount = "get_collection_count"
	toolQueryDocuments     = "query_documents"
)

type getAllCollectionsInput struct {
	Page     int `json:"page,omitempty" jsonschema:"Page number for pagination (default 1)"`
	PageSize int `json:"page_size,omitempty" jsonschema:"Number of collections per page (default 10)"`
}

type collectionNameInput struct {
	Name string `json:"name" jsonschema:"Name of the collection"`
}

type queryDocumentsInput struct {
	CollectionName string         `json:"collection_name" jsonschema:"Name of the collection to query"`
	Query          string         `json:"query" jsonschema:"The search query string"`
	K              int            `json:"k,omitempty" jsonschema:"Number of top results to return (default 3)"`
	Filter         map[string]any `json:"filter,omitempty" jsonschema:"Optional metadata filter; every key must equal the given value"`
}

// jsonResult marshals r into a single text block. Failed results are
// flagged with IsError but keep the {"error": ...} body.
func jsonResult[T any](r query.Result[T]) *mcp.CallToolResult {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(query.ErrorBody{Error: err.Error()})
		return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: string(b)}}}
	}
	return &mcp.CallToolResult{
		IsError: !r.OK(),
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

// call runs one tool invocation with metrics and a request-scoped logger.
func call[T any](ctx context.Context, s *Server, req *mcp.CallToolRequest, tool string, run func(context.Context) query.Result[T]) *mcp.CallToolResult {
	if req != nil && req.Session != nil {
		ctx = logging.WithRequestID(ctx, req.Session.ID())
	}
	done := s.metrics.track(ctx, tool)
	r := run(ctx)
	done(r.Err)

	if r.Err != nil {
		s.logger.Info(ctx, "tool returned error",
			zap.String("tool", tool),
			zap.String("kind", string(r.Err.Kind)),
			zap.String("error", r.Err.Message),
		)
	} else {
		s.logger.Debug(ctx, "tool call", zap.String("tool", tool))
	}
	return jsonResult(r)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolGetAllCollections,
		Description: "List all collections with pagination support.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in getAllCollectionsInput) (*mcp.CallToolResult, any, error) {
		return call(ctx, s, req, toolGetAllCollections, func(ctx context.Context) query.Result[[]vectorstore.Collection] {
			return s.query.ListCollections(ctx, in.Page, in.PageSize)
		}), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolGetCollectionInfo,
		Description: "Get detailed info about a collection.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in collectionNameInput) (*mcp.CallToolResult, any, error) {
		return call(ctx, s, req, toolGetCollectionInfo, func(ctx context.Context) query.Result[vectorstore.Collection] {
			return s.query.GetCollectionInfo(ctx, in.Name)
		}), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolGetCollectionCount,
		Description: "Get document count in a collection.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in collectionNameInput) (*mcp.CallToolResult, any, error) {
		return call(ctx, s, req, toolGetCollectionCount, func(ctx context.Context) query.Result[query.Count] {
			return s.query.GetCollectionCount(ctx, in.Name)
		}), nil, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolQueryDocuments,
		Description: "Query documents using semantic search and filters.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in queryDocumentsInput) (*mcp.CallToolResult, any, error) {
		return call(ctx, s, req, toolQueryDocuments, func(ctx context.Context) query.Result[[]vectorstore.Document] {
			return s.query.QueryDocuments(ctx, query.QueryRequest{
				CollectionName: in.CollectionName,
				Query:          in.Query,
				K:              in.K,
				Filter:         vectorstore.Metadata(in.Filter),
			})
		}), nil, nil
	})
}
