// Ragdocs serves PDF document collections stored in a vector database to MCP
// clients, and ingests PDFs into those collections.
//
// Usage:
//
//	# MCP server on stdio, admin HTTP on :9090
//	ragdocs serve --http-addr localhost:9090
//
//	# Ingest PDFs with the default collection settings
//	STORE_HOST=localhost STORE_PORT=8000 ragdocs ingest report.pdf
//
//	# Interactive ingestion form
//	ragdocs form
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}
