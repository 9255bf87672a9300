package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpserver "github.com/fyrsmithlabs/ragdocs/internal/http"
	"github.com/fyrsmithlabs/ragdocs/internal/logging"
	"github.com/fyrsmithlabs/ragdocs/internal/mcp"
	"github.com/fyrsmithlabs/ragdocs/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run the MCP server on stdio. Logs go to stderr.

With --http-addr (or SERVER_HTTP_ADDR) an admin HTTP server also serves
/health, /metrics and a read-only REST mirror of the MCP tools.

Examples:
  ragdocs serve
  ragdocs serve --http-addr localhost:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&a.httpAddr, "http-addr", "", "admin HTTP listen address (disabled when empty)")
	return cmd
}

// runServe blocks until ctx is cancelled or the MCP client disconnects.
func (a *app) runServe(ctx context.Context) error {
	tel, err := telemetry.New(ctx, telemetry.FromConfig(a.cfg.Telemetry, version))
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			a.logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
		}
	}()
	if h := tel.Health(); h.Degraded {
		a.logger.Warn(ctx, "telemetry degraded", zap.Error(h.Err))
	}

	// Re-create the logger so records also reach the OTEL bridge.
	if lp := tel.LoggerProvider(); lp != nil {
		lc := logging.FromConfig(a.cfg.Log)
		lc.Output.OTEL = true
		if logger, err := logging.NewLogger(lc, lp); err == nil {
			a.logger = logger
		}
	}

	connector := a.connector()
	svc := a.queryService()

	mcpServer, err := mcp.NewServer(&mcp.Config{
		Name:    a.cfg.Server.Name,
		Version: a.cfg.Server.Version,
		Logger:  a.logger.Named("mcp"),
	}, svc)
	if err != nil {
		return err
	}

	a.logger.Info(ctx, "starting ragdocs",
		zap.String("version", version),
		zap.String("store_provider", a.cfg.Store.Provider),
		zap.Bool("store_configured", a.cfg.Store.Configured()),
		zap.String("http_addr", a.cfg.Server.HTTPAddr),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The MCP session ending (stdin closed) stops the admin server too.
		defer cancel()
		return mcpServer.Run(gctx)
	})

	if addr := a.cfg.Server.HTTPAddr; addr != "" {
		httpServer, err := httpserver.NewServer(svc, connector, a.logger.Named("http"), &httpserver.Config{Addr: addr})
		if err != nil {
			return err
		}
		g.Go(httpServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info(context.Background(), "ragdocs stopped")
	return nil
}
