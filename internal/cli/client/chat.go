package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func ChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the support assistant",
		Long: `Send a message and stream the assistant's reply to stdout. The conversation
id is printed to stderr.

Without a message, chat starts an interactive session that keeps the same
conversation across turns. An empty line or end of input ends the session.`,
		RunE: runChat,
	}

	cmd.Flags().StringP("conversation", "c", "", "Continue the conversation with this id")
	cmd.Flags().Bool("continue", false, "Continue the most recent conversation")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	client, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	conversationID, _ := cmd.Flags().GetString("conversation")
	if resume, _ := cmd.Flags().GetBool("continue"); resume && conversationID == "" {
		config, err := LoadGlobalConfig()
		if err != nil {
			return err
		}
		if config == nil || config.LastConversationID == "" {
			return fmt.Errorf("no previous conversation to continue")
		}
		conversationID = config.LastConversationID
	}

	session := &chatSession{
		client:         client,
		conversationID: conversationID,
		out:            cmd.OutOrStdout(),
		status:         cmd.ErrOrStderr(),
	}

	if len(args) > 0 {
		return session.turn(cmd.Context(), strings.Join(args, " "))
	}
	return session.interactive(cmd.Context(), cmd.InOrStdin())
}

type chatSession struct {
	client         *APIClient
	conversationID string
	out            io.Writer
	status         io.Writer
}

func (s *chatSession) interactive(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.status, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.status)
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			return nil
		}
		if err := s.turn(ctx, message); err != nil {
			return err
		}
	}
}

// turn sends one message and copies the reply to out as it arrives.
func (s *chatSession) turn(ctx context.Context, message string) error {
	reply, err := s.client.Chat(ctx, ChatRequest{
		Message:        message,
		ConversationID: s.conversationID,
	})
	if err != nil {
		return err
	}
	defer reply.Body.Close()

	if reply.ConversationID != "" && reply.ConversationID != s.conversationID {
		s.conversationID = reply.ConversationID
		fmt.Fprintf(s.status, "conversation: %s\n", s.conversationID)
		// failing to persist only loses --continue
		_ = rememberConversation(s.conversationID)
	}

	if _, err := io.Copy(s.out, reply.Body); err != nil {
		return fmt.Errorf("reply interrupted: %w", err)
	}
	fmt.Fprintln(s.out)
	return nil
}
