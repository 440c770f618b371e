package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/store"
)

var (
	addID   string
	addMeta map[string]string
	addFile string
)

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Index a document",
	Long:  "Store a document and its embedding. Text comes from the arguments, or from --file (\"-\" reads stdin).",
	RunE:  runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addID, "id", "", "Document id (default derived from the text)")
	addCmd.Flags().StringToStringVar(&addMeta, "meta", nil, "Metadata as key=value pairs")
	addCmd.Flags().StringVar(&addFile, "file", "", "Read the document text from a file")
}

func runAdd(cmd *cobra.Command, args []string) error {
	text, err := documentText(cmd.InOrStdin(), addFile, args)
	if err != nil {
		return err
	}

	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	meta := make(map[string]any, len(addMeta))
	for k, v := range addMeta {
		meta[k] = v
	}
	res, err := a.engine.AddDocument(cmd.Context(), store.Document{ID: addID, Text: text, Metadata: meta})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func documentText(stdin io.Reader, file string, args []string) (string, error) {
	switch {
	case file == "-":
		buf, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(buf), nil
	case file != "":
		buf, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(buf), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	default:
		return "", fmt.Errorf("no text given; pass it as arguments or with --file")
	}
}
