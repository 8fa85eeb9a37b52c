package admin

import (
	"github.com/cloo-solutions/helpdesk/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// contentFlags overrides where knowledge is read from and indexed into.
func contentFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("content", pflag.ContinueOnError)
	fs.String("content-root", "", "Knowledge content root (overrides HELPDESK_CONTENT_ROOT)")
	fs.String("db-path", "", "SQLite vector store file (overrides HELPDESK_VECTOR_DB_PATH)")
	fs.String("persistence", "", "Vector store persistence: memory, sqlite or postgres")
	return fs
}

// outputFlags selects human or machine readable output.
func outputFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("output", pflag.ContinueOnError)
	fs.StringP("output", "o", "text", "Output format (text or json)")
	return fs
}

// loadConfig reads the environment and applies any content flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if v, _ := flags.GetString("content-root"); v != "" {
		cfg.ContentRoot = v
	}
	if v, _ := flags.GetString("db-path"); v != "" {
		cfg.VectorDBPath = v
	}
	if v, _ := flags.GetString("persistence"); v != "" {
		cfg.VectorPersistence = v
	}
	return cfg, cfg.Validate()
}

func jsonOutput(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}
