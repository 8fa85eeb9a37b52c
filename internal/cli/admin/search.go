package admin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloo-solutions/helpdesk/internal/jobs"
	"github.com/cloo-solutions/helpdesk/internal/knowledge"
	"github.com/spf13/cobra"
)

func SearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the vector store from the shell",
		Long: `Rank stored knowledge chunks against a query. A memory-only store is
indexed from the content root first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().AddFlagSet(contentFlags())
	cmd.Flags().AddFlagSet(outputFlags())
	cmd.Flags().IntP("top-k", "k", 0, "Number of results (default HELPDESK_TOP_K)")
	cmd.Flags().StringP("locale", "l", "", "Preferred locale (default HELPDESK_DEFAULT_LOCALE)")
	cmd.Flags().StringSliceP("tag", "t", nil, "Require a tag (repeatable)")

	return cmd
}

type searchHit struct {
	DocumentID string   `json:"documentId"`
	Title      string   `json:"title"`
	Position   int      `json:"position"`
	Similarity float64  `json:"similarity"`
	Tags       []string `json:"tags"`
	Content    string   `json:"content"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store := newVectorStore(ctx, cfg, logger)
	defer store.Close()

	if store.Mode() == knowledge.PersistenceMemory {
		indexer := jobs.NewKnowledgeIndexer(newLoader(cfg, logger), store, nil, logger)
		if _, err := indexer.Reindex(ctx); err != nil {
			return fmt.Errorf("failed to index knowledge: %w", err)
		}
	}

	topK, _ := cmd.Flags().GetInt("top-k")
	locale, _ := cmd.Flags().GetString("locale")
	tags, _ := cmd.Flags().GetStringSlice("tag")

	retriever := knowledge.NewIndexedRetriever(store, cfg.DefaultLocale, cfg.TopK)
	chunks, err := retriever.Retrieve(ctx, strings.Join(args, " "), knowledge.RetrievalQuery{
		Locale: locale,
		Tags:   tags,
		TopK:   topK,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	hits := make([]searchHit, len(chunks))
	for i, c := range chunks {
		hits[i] = searchHit{
			DocumentID: c.DocumentID,
			Title:      c.Title,
			Position:   c.Position,
			Similarity: c.Similarity,
			Tags:       c.Tags,
			Content:    c.Content,
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(hits) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, h := range hits {
		fmt.Fprintf(out, "%d. %s #%d (%.3f)\n", i+1, h.DocumentID, h.Position, h.Similarity)
		fmt.Fprintf(out, "   %s\n", excerptLine(h.Content, 120))
	}
	return nil
}

func excerptLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
