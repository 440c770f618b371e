package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dedupThreshold float64

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Refit the embedding space and embed documents that have no vector for it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.engine.Refit(cmd.Context()); err != nil {
			return fmt.Errorf("refit: %w", err)
		}
		n, err := a.engine.EmbedMissing(cmd.Context())
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "embedded %d documents (%s)\n", n, a.engine.Embedder.Model())
		return nil
	},
}

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Remove semantically duplicate documents",
	Long:  "Cluster documents whose embeddings are at least --threshold similar and keep the most recently updated one per cluster.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dedupThreshold <= 0 || dedupThreshold > 1 {
			return fmt.Errorf("threshold must be in (0, 1]")
		}
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.engine.Dedup(cmd.Context(), dedupThreshold)
		if err != nil {
			return fmt.Errorf("dedup: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d duplicate documents\n", n)
		return nil
	},
}

func init() {
	dedupCmd.Flags().Float64Var(&dedupThreshold, "threshold", 0.95, "Cosine similarity at which documents count as duplicates")
}
