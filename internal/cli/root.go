package cli

import (
	"github.com/spf13/cobra"
)

// Global flags shared by every command.
var (
	configPath string
	logLevel   string
	logFormat  string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Fused retrieval over documents, a knowledge graph and the web",
	Long: "Recall answers queries by combining vector search over indexed documents, " +
		"relation lookups in a local knowledge graph and optional web search into one ranked list. " +
		"Single Go binary, SQLite storage.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default ~/.recall/config.toml)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "Log format: pretty, text, json")
	pf.StringVar(&dbPath, "db", "", "Database path (default ~/.recall/recall.db)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(dedupCmd)
}
