package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lazypower/recall/internal/client"
	"github.com/lazypower/recall/internal/store"
)

var graphOut string

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Manage the knowledge graph",
}

var graphImportCmd = &cobra.Command{
	Use:   "import [file.yaml]",
	Short: "Merge entities and relations from a YAML file",
	Long: `Merge a YAML graph into the store. Existing entities keep their type and gain any new
observations; existing relations are skipped. The format is:

  entities:
    - name: recall
      entityType: project
      observations: [written in Go]
  relations:
    - from: recall
      to: chi
      relationType: uses_framework`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphImport,
}

var graphExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the whole graph as YAML",
	RunE:  runGraphExport,
}

var graphSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find entities by name, type or observation",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphSearch,
}

func init() {
	graphExportCmd.Flags().StringVarP(&graphOut, "output", "o", "", "Output file (default stdout)")
	graphSearchCmd.Flags().BoolVar(&queryRemote, "remote", false, "Query a running recall server")
	graphSearchCmd.Flags().StringVar(&queryURL, "url", "", "Server URL for --remote")

	graphCmd.AddCommand(graphImportCmd)
	graphCmd.AddCommand(graphExportCmd)
	graphCmd.AddCommand(graphSearchCmd)
}

func runGraphImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	entities, relations, err := importGraph(db, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d entities, %d relations\n", entities, relations)
	return nil
}

func runGraphExport(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	w := cmd.OutOrStdout()
	if graphOut != "" {
		f, err := os.Create(graphOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return exportGraph(db, w)
}

func runGraphSearch(cmd *cobra.Command, args []string) error {
	if queryRemote {
		raw, err := client.New(queryURL).SearchNodes(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), raw)
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	g, err := db.SearchNodes(args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), g)
}

// openDB opens the configured database without wiring retrieval.
func openDB() (*store.DB, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Database.Path)
}

func importGraph(db *store.DB, r io.Reader) (entities, relations int, err error) {
	var g store.Graph
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil && err != io.EOF {
		return 0, 0, fmt.Errorf("parse graph: %w", err)
	}
	return db.ImportGraph(&g)
}

func exportGraph(db *store.DB, w io.Writer) error {
	g, err := db.ReadGraph()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	return enc.Close()
}
