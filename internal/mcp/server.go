// Package mcp exposes the query operations as MCP tools.
//
// Tools: get_all_collections, get_collection_info, get_collection_count and
// query_documents. Every tool answers with a single JSON text block holding
// either the payload or {"error": "<message>"}.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdocs/internal/logging"
	"github.com/fyrsmithlabs/ragdocs/internal/query"
)

// DefaultInstructions tell clients how the tools answer.
const DefaultInstructions = `You are a document storage and retrieval system using Chroma DB.
- Your tasks include listing collections and retrieving documents based on query similarity.
- Always respond with structured JSON. For errors, use {"error": "<error message>"}.
- Avoid explanations or extra text; return only JSON objects representing results.`

// Server is an MCP server backed by a query.Service.
type Server struct {
	mcp     *mcp.Server
	query   *query.Service
	metrics *Metrics
	logger  *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "Chroma DB Document Storage")
	Name string

	// Version is the server version (default: "0.1.0")
	Version string

	// Instructions are sent to clients on initialize (default: DefaultInstructions)
	Instructions string

	Logger  *logging.Logger
	Metrics *Metrics
}

// DefaultConfig returns the default server identity.
func DefaultConfig() *Config {
	return &Config{
		Name:         "Chroma DB Document Storage",
		Version:      "0.1.0",
		Instructions: DefaultInstructions,
		Logger:       logging.NewNop(),
	}
}

// NewServer creates a server and registers the tools.
func NewServer(cfg *Config, svc *query.Service) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("query service is required")
	}
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.Instructions == "" {
		cfg.Instructions = def.Instructions
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(cfg.Logger.Underlying())
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{Name: cfg.Name, Version: cfg.Version},
			&mcp.ServerOptions{Instructions: cfg.Instructions},
		),
		query:   svc,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP on stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves one session on transport and returns without waiting for
// it to end.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.mcp.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting session: %w", err)
	}
	s.logger.Debug(ctx, "mcp session connected", zap.String("session", session.ID()))
	return session, nil
}
