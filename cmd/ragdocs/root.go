package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragdocs/internal/config"
	"github.com/fyrsmithlabs/ragdocs/internal/logging"
	"github.com/fyrsmithlabs/ragdocs/internal/query"
	"github.com/fyrsmithlabs/ragdocs/internal/vectorstore"
)

// app holds what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
	httpAddr   string

	// dialer replaces vectorstore.DefaultDialer in tests.
	dialer vectorstore.Dialer

	source config.Source
	cfg    *config.Config
	logger *logging.Logger
}

// errReported marks a failure whose details were already written to stdout.
var errReported = errors.New("operation failed")

func newRootCmd() *cobra.Command {
	a := &app{}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragdocs",
		Short: "PDF document storage and retrieval over MCP",
		Long: `ragdocs ingests PDF files into a vector database and answers MCP clients
with collection listings, collection details, document counts and
similarity search over the stored chunks.

The vector store is configured with STORE_PROVIDER (chroma, qdrant, chromem),
STORE_HOST and STORE_PORT. Without a host and port every query reports
"Chroma client unavailable.".`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.config/ragdocs/config.yaml)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: json or console")

	root.AddCommand(
		a.serveCmd(),
		a.ingestCmd(),
		a.formCmd(),
		a.collectionsCmd(),
		a.infoCmd(),
		a.countCmd(),
		a.queryCmd(),
	)
	return root
}

// setup loads the environment and configuration and builds the logger.
// The config source is kept so that store connections re-read it.
func (a *app) setup() error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	a.source = config.WithOverrides(config.FileSource{Path: a.configPath}, a.applyFlags)
	cfg, err := a.source.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	lc := logging.FromConfig(cfg.Log)
	if err := lc.Validate(); err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(lc, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	return nil
}

// applyFlags layers command-line flags over file and environment values.
func (a *app) applyFlags(cfg *config.Config) {
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.httpAddr != "" {
		cfg.Server.HTTPAddr = a.httpAddr
	}
}

func (a *app) connector() *vectorstore.Connector {
	opts := []vectorstore.ConnectorOption{vectorstore.WithLogger(a.logger.Underlying())}
	if a.dialer != nil {
		opts = append(opts, vectorstore.WithDialer(a.dialer))
	}
	return vectorstore.NewConnector(a.source, opts...)
}

func (a *app) queryService() *query.Service {
	return query.NewService(a.connector(), a.logger)
}
