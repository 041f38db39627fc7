package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bankops/mfkb/internal/retrieval"
	"github.com/bankops/mfkb/internal/vectorstore"
)

var (
	flagClassification string
	flagSourceType     string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents into the knowledge base",
	Long: `Reads each file, chunks it, embeds the chunks and stores them. The
file name (without extension) becomes the document ID.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&flagClassification, "classification", "internal",
		"classification for the ingested documents (public, internal, confidential, restricted)")
	ingestCmd.Flags().StringVar(&flagSourceType, "source-type", "kb_article",
		"source type recorded in chunk metadata")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	docs := make([]retrieval.Document, 0, len(args))
	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		base := filepath.Base(path)
		docs = append(docs, retrieval.Document{
			ID:      strings.TrimSuffix(base, filepath.Ext(base)),
			Content: string(content),
			Metadata: map[string]string{
				vectorstore.MetaTitle:          base,
				vectorstore.MetaClassification: flagClassification,
				vectorstore.MetaSourceType:     flagSourceType,
			},
			CreatedAt: time.Now(),
		})
	}

	results, err := rt.engine.AddDocuments(ctx, docs)
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s: %v\n", res.DocumentID, res.Err)
			continue
		}
		line := fmt.Sprintf("OK   %s: %d chunks", res.DocumentID, res.Chunks)
		if len(res.Tags) > 0 {
			line += " [" + strings.Join(res.Tags, ", ") + "]"
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return err
}
