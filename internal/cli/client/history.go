package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type conversationHistory struct {
	ID       string `json:"id"`
	Messages []struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		CreatedAt string `json:"createdAt"`
	} `json:"messages"`
}

func HistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "Print the messages of a conversation",
		Long:  "Print the messages of a conversation. Defaults to the most recent one.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	client, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	var id string
	if len(args) == 1 {
		id = args[0]
	} else {
		config, err := LoadGlobalConfig()
		if err != nil {
			return err
		}
		if config == nil || config.LastConversationID == "" {
			return fmt.Errorf("no conversation id given and no previous conversation")
		}
		id = config.LastConversationID
	}

	var history conversationHistory
	if err := client.Get(cmd.Context(), "/conversations/"+id, &history); err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("conversation %s not found (conversations live in daemon memory)", id)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("output"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	for _, m := range history.Messages {
		fmt.Fprintf(out, "[%s] %s:\n%s\n\n", m.CreatedAt, m.Role, m.Content)
	}
	return nil
}
