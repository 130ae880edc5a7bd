package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eblahq/ragchat/internal/logging"
)

// NewSummarizeCmd constructs the `ragchat summarize` command, which condenses
// a session's recent messages into a stored summary.
func NewSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize [session-id]",
		Short: "Summarize a conversation session",
		Long: `Generate and store a concise summary of a session's recent messages.

The summary is produced by the configured LLM, persisted alongside the
session with the covered message range, and printed to stdout. A session
with no messages yields a fixed notice and stores nothing.

Examples:
  ragchat summarize 5f0c2a7e-…
  MODEL_PROVIDER=openai ragchat summarize 5f0c2a7e-…`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc, _, _, cleanup, err := buildChatService(ctx, log)
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}
			defer cleanup()

			summary, err := svc.SummarizeSession(ctx, args[0])
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}

			fmt.Println(summary)
			return nil
		},
	}

	return cmd
}
