package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type healthStatus struct {
	Status             string `json:"status"`
	ProviderConfigured bool   `json:"providerConfigured"`
	VectorStore        string `json:"vectorStore"`
	Chunks             int    `json:"chunks"`
}

func HealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the helpdesk daemon is reachable",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	client, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	var status healthStatus
	if err := client.Get(cmd.Context(), "/health", &status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("output"); asJSON {
		return json.NewEncoder(out).Encode(status)
	}

	provider := "not configured"
	if status.ProviderConfigured {
		provider = "configured"
	}
	fmt.Fprintf(out, "%s: %s (vector store %s, %d chunks, provider %s)\n",
		client.BaseURL(), status.Status, status.VectorStore, status.Chunks, provider)
	return nil
}
