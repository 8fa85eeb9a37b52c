package admin

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cloo-solutions/helpdesk/internal/config"
	"github.com/cloo-solutions/helpdesk/internal/content"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/cloo-solutions/helpdesk/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func KnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect and distribute the knowledge base",
	}

	cmd.AddCommand(KnowledgeListCmd())
	cmd.AddCommand(KnowledgeSyncCmd())
	cmd.AddCommand(KnowledgePushCmd())

	return cmd
}

func KnowledgeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List knowledge entries under the content root",
		Args:  cobra.NoArgs,
		RunE:  runKnowledgeList,
	}

	cmd.Flags().AddFlagSet(contentFlags())
	cmd.Flags().AddFlagSet(outputFlags())
	cmd.Flags().String("category", "", "Only list entries in this category")
	cmd.Flags().String("locale", "", "Only list entries available in this locale")
	cmd.Flags().String("status", "", "Entry status (default published)")

	return cmd
}

type entryListItem struct {
	Key      string   `json:"key"`
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Locales  []string `json:"locales"`
	Status   string   `json:"status"`
	Updated  string   `json:"updated,omitempty"`
}

func runKnowledgeList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var q content.Query
	if v, _ := cmd.Flags().GetString("category"); v != "" {
		category := domain.KnowledgeCategory(v)
		if !domain.IsValidKnowledgeCategory(category) {
			return fmt.Errorf("unknown category %q", v)
		}
		q.Category = category
	}
	q.Locale, _ = cmd.Flags().GetString("locale")
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		q.Status = domain.KnowledgeStatus(v)
	}

	loader := newLoader(cfg, zap.NewNop())
	entries, err := loader.Entries(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("failed to load knowledge: %w", err)
	}

	items := make([]entryListItem, len(entries))
	for i, e := range entries {
		items[i] = entryListItem{
			Key:      e.Key(),
			Title:    e.Metadata.Title,
			Category: string(e.Metadata.Category),
			Locales:  e.Metadata.Locales,
			Status:   string(e.Metadata.Status),
		}
		if e.Metadata.Updated != nil {
			items[i].Updated = e.Metadata.Updated.Format("2006-01-02")
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if len(items) == 0 {
		fmt.Fprintln(out, "No knowledge entries found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTITLE\tLOCALES\tUPDATED")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", item.Key, item.Title, strings.Join(item.Locales, ","), item.Updated)
	}
	return tw.Flush()
}

func KnowledgeSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download knowledge markdown from object storage into the content root",
		Args:  cobra.NoArgs,
		RunE:  runKnowledgeSync,
	}

	cmd.Flags().AddFlagSet(contentFlags())
	cmd.Flags().String("prefix", "", "Object key prefix (overrides HELPDESK_S3_PREFIX)")
	cmd.Flags().Bool("prune", false, "Delete local entries that no longer exist remotely")

	return cmd
}

func runKnowledgeSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	client, err := newS3Client(cmd, cfg)
	if err != nil {
		return err
	}

	prefix := cfg.S3Prefix
	if v, _ := cmd.Flags().GetString("prefix"); v != "" {
		prefix = v
	}
	prune, _ := cmd.Flags().GetBool("prune")

	result, err := storage.PullContent(cmd.Context(), client, cfg.ContentRoot, storage.SyncOptions{
		Prefix: prefix,
		Prune:  prune,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to sync knowledge: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Synced s3://%s/%s into %s: %d written, %d unchanged, %d removed\n",
		client.Bucket(), prefix, cfg.ContentRoot, len(result.Written), result.Unchanged, len(result.Removed))
	return nil
}

func KnowledgePushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload the content root to object storage",
		Args:  cobra.NoArgs,
		RunE:  runKnowledgePush,
	}

	cmd.Flags().AddFlagSet(contentFlags())
	cmd.Flags().String("prefix", "", "Object key prefix (overrides HELPDESK_S3_PREFIX)")

	return cmd
}

func runKnowledgePush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	client, err := newS3Client(cmd, cfg)
	if err != nil {
		return err
	}
	if err := client.EnsureBucket(cmd.Context()); err != nil {
		return err
	}

	prefix := cfg.S3Prefix
	if v, _ := cmd.Flags().GetString("prefix"); v != "" {
		prefix = v
	}

	pushed, err := storage.PushContent(cmd.Context(), client, cfg.ContentRoot, prefix)
	if err != nil {
		return fmt.Errorf("failed to push knowledge: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d files to s3://%s/%s\n", len(pushed), client.Bucket(), prefix)
	return nil
}

func newS3Client(cmd *cobra.Command, cfg *config.Config) (*storage.S3Client, error) {
	if !cfg.HasS3() {
		return nil, fmt.Errorf("object storage not configured: set HELPDESK_S3_ENDPOINT, HELPDESK_S3_ACCESS_KEY_ID and HELPDESK_S3_SECRET_ACCESS_KEY")
	}
	client, err := storage.NewS3Client(cmd.Context(), storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return client, nil
}
