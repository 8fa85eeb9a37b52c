package admin

import (
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/helpdesk/internal/jobs"
	"github.com/cloo-solutions/helpdesk/internal/knowledge"
	"github.com/spf13/cobra"
)

func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the content root into the vector store",
		Long: `Chunk, embed and store every published knowledge entry. Documents that
no longer exist under the content root are deleted from the store.`,
		Args: cobra.NoArgs,
		RunE: runIndex,
	}

	cmd.Flags().AddFlagSet(contentFlags())
	cmd.Flags().AddFlagSet(outputFlags())

	return cmd
}

type indexReport struct {
	Persistence string `json:"persistence"`
	Indexed     int    `json:"indexed"`
	Unchanged   int    `json:"unchanged"`
	Removed     int    `json:"removed"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	Chunks      int    `json:"chunks"`
}

func runIndex(cmd *cobra.Command, args []string) error {
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
		logger.Warn("index.memory_only")
	}

	indexer := jobs.NewKnowledgeIndexer(newLoader(cfg, logger), store, nil, logger)
	result, err := indexer.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("failed to index knowledge: %w", err)
	}

	chunks, err := store.Count(ctx)
	if err != nil {
		return err
	}

	report := indexReport{
		Persistence: string(store.Mode()),
		Indexed:     result.Indexed,
		Unchanged:   result.Unchanged,
		Removed:     result.Removed,
		Failed:      result.Failed,
		Skipped:     result.Skipped,
		Chunks:      chunks,
	}

	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return json.NewEncoder(out).Encode(report)
	}
	fmt.Fprintf(out, "Indexed %d documents (%d unchanged, %d removed, %d failed, %d skipped); %d chunks in %s store\n",
		report.Indexed, report.Unchanged, report.Removed, report.Failed, report.Skipped, report.Chunks, report.Persistence)
	if report.Failed > 0 {
		return fmt.Errorf("%d documents failed to index", report.Failed)
	}
	return nil
}
