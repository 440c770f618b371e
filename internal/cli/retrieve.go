package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/client"
	"github.com/lazypower/recall/internal/retrieval"
)

const queryTimeout = 60 * time.Second

var (
	queryTopK    int
	queryMode    string
	queryFilters []string
	queryRemote  bool
	queryURL     string
	enrichText   string
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Retrieve with a chosen mode and print the JSON envelope",
	Long:  "Run a retrieval in vector, graph, hybrid or fusion mode. Unknown modes use fusion.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRetrieve,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Fused search across every configured source",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var enrichCmd = &cobra.Command{
	Use:   "enrich [query]",
	Short: "Append retrieved information to a context",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEnrich,
}

func init() {
	for _, c := range []*cobra.Command{retrieveCmd, searchCmd, enrichCmd} {
		c.Flags().IntVarP(&queryTopK, "top-k", "n", 0, "Number of results (default from config)")
		c.Flags().BoolVar(&queryRemote, "remote", false, "Query a running recall server instead of the local database")
		c.Flags().StringVar(&queryURL, "url", "", "Server URL for --remote (default $RECALL_URL or "+client.DefaultURL+")")
	}
	for _, c := range []*cobra.Command{retrieveCmd, searchCmd} {
		c.Flags().StringArrayVarP(&queryFilters, "filter", "f", nil, "Filter as key=value; repeat a key to match any of several values")
	}
	retrieveCmd.Flags().StringVarP(&queryMode, "mode", "m", "", "vector, graph, hybrid or fusion (default from config)")
	enrichCmd.Flags().StringVar(&enrichText, "context", "", "Existing context to extend")
}

// topKFlag returns the --top-k count, or nil when the flag was not given
// so the configured default applies.
func topKFlag(cmd *cobra.Command) (*int, error) {
	if !cmd.Flags().Changed("top-k") {
		return nil, nil
	}
	if queryTopK < 0 {
		return nil, fmt.Errorf("--top-k must be >= 0, got %d", queryTopK)
	}
	return &queryTopK, nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	topK, err := topKFlag(cmd)
	if err != nil {
		return err
	}
	filters, err := parseFilters(queryFilters)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	if queryRemote {
		resp, err := client.New(queryURL).Retrieve(ctx, query, topK, retrieval.Mode(queryMode), filters)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	resp := a.pipeline.Retrieve(ctx, retrieval.Request{
		Query:   query,
		TopK:    topK,
		Filters: filters,
		Mode:    retrieval.Mode(queryMode),
	})
	return printJSON(cmd.OutOrStdout(), resp)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	topK, err := topKFlag(cmd)
	if err != nil {
		return err
	}
	filters, err := parseFilters(queryFilters)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	if queryRemote {
		resp, err := client.New(queryURL).SearchHybrid(ctx, query, topK, filters)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return printJSON(cmd.OutOrStdout(), a.pipeline.SearchHybrid(ctx, query, topK, filters))
}

func runEnrich(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	topK, err := topKFlag(cmd)
	if err != nil {
		return err
	}
	var existing *string
	if cmd.Flags().Changed("context") {
		existing = &enrichText
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	if queryRemote {
		out, err := client.New(queryURL).Enrich(ctx, query, existing, topK)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return printJSON(cmd.OutOrStdout(), a.pipeline.EnrichContext(ctx, query, existing, topK))
}
