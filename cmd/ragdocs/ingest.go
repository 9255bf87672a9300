package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragdocs/internal/form"
	"github.com/fyrsmithlabs/ragdocs/internal/ingest"
	"github.com/fyrsmithlabs/ragdocs/internal/logging"
)

func (a *app) pipeline(logger *logging.Logger) *ingest.Pipeline {
	return ingest.NewPipeline(a.connector(), ingest.WithLogger(logger))
}

func (a *app) ingestCmd() *cobra.Command {
	var (
		collection   string
		description  string
		source       string
		language     string
		docType      string
		chunkSize    int
		chunkOverlap int
	)

	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Split PDF files into chunks and add them to a collection",
		Long: `Load every page of the given PDF files, split the text into overlapping
chunks and add the chunks to a collection, creating it if needed.

Unset flags use the ingest section of the configuration.

Examples:
  ragdocs ingest press-2024-01.pdf press-2024-02.pdf
  ragdocs ingest --collection manuals --chunk-size 800 --chunk-overlap 150 manual.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ingest.RequestFromConfig(a.cfg.Ingest, args)
			flags := cmd.Flags()
			if flags.Changed("collection") {
				req.CollectionName = collection
			}
			if flags.Changed("description") {
				req.Description = description
			}
			if flags.Changed("source") {
				req.Source = source
			}
			if flags.Changed("language") {
				req.Language = language
			}
			if flags.Changed("doc-type") {
				req.DocType = docType
			}
			if flags.Changed("chunk-size") {
				req.ChunkSize = chunkSize
			}
			if flags.Changed("chunk-overlap") {
				req.ChunkOverlap = chunkOverlap
			}

			status, err := a.pipeline(a.logger.Named("ingest")).Process(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&collection, "collection", "", "collection name")
	flags.StringVar(&description, "description", "", "collection description")
	flags.StringVar(&source, "source", "", "collection source")
	flags.StringVar(&language, "language", "", "document language")
	flags.StringVar(&docType, "doc-type", "", "document type")
	flags.IntVar(&chunkSize, "chunk-size", 0, "chunk size in characters")
	flags.IntVar(&chunkOverlap, "chunk-overlap", 0, "overlap between chunks in characters")
	return cmd
}

func (a *app) formCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "form [file.pdf]...",
		Short: "Open the interactive ingestion form",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stderr logging would draw over the form.
			m := form.NewModel(cmd.Context(), a.pipeline(logging.NewNop()), a.cfg.Ingest, args)
			return form.Run(cmd.Context(), m)
		},
	}
}
