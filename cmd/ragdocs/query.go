package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragdocs/internal/query"
	"github.com/fyrsmithlabs/ragdocs/internal/vectorstore"
)

// printResult writes r as indented JSON. Failed results are printed too and
// reported as errReported so the exit status is non-zero.
func printResult[T any](w io.Writer, r query.Result[T]) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Fprintln(w, string(b))
	if !r.OK() {
		return errReported
	}
	return nil
}

func (a *app) collectionsCmd() *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printResult(cmd.OutOrStdout(), a.queryService().ListCollections(cmd.Context(), page, pageSize))
		},
	}
	cmd.Flags().IntVar(&page, "page", query.DefaultPage, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", query.DefaultPageSize, "collections per page")
	return cmd
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <collection>",
		Short: "Show a collection's name and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResult(cmd.OutOrStdout(), a.queryService().GetCollectionInfo(cmd.Context(), args[0]))
		},
	}
}

func (a *app) countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <collection>",
		Short: "Count the documents in a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResult(cmd.OutOrStdout(), a.queryService().GetCollectionCount(cmd.Context(), args[0]))
		},
	}
}

func (a *app) queryCmd() *cobra.Command {
	var (
		k       int
		filters []string
	)
	cmd := &cobra.Command{
		Use:   "query <collection> <text>",
		Short: "Similarity search in a collection",
		Long: `Return the k chunks most similar to the query text.

Examples:
  ragdocs query khmer_press_release "trade agreement"
  ragdocs query manuals "reset the router" -k 5 --filter source=manual.pdf`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilter(filters)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), a.queryService().QueryDocuments(cmd.Context(), query.QueryRequest{
				CollectionName: args[0],
				Query:          strings.Join(args[1:], " "),
				K:              k,
				Filter:         filter,
			}))
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", query.DefaultK, "number of results")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "metadata equality filter key=value (repeatable)")
	return cmd
}

// parseFilter turns key=value pairs into metadata. Integer and boolean
// values keep their type so they match what ingestion stored.
func parseFilter(pairs []string) (vectorstore.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(vectorstore.Metadata, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: want key=value", p)
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			filter[key] = n
		} else if b, err := strconv.ParseBool(value); err == nil {
			filter[key] = b
		} else {
			filter[key] = value
		}
	}
	return filter, nil
}
