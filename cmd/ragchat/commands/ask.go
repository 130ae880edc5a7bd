package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eblahq/ragchat/internal/chat"
	"github.com/eblahq/ragchat/internal/logging"
)

// NewAskCmd constructs the `ragchat ask` command, which runs a single chat
// turn through the full pipeline and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var sessionID string
	var collection string
	var topK int
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the knowledge base",
		Long: `Ask a single question grounded in the ingested knowledge base.

The question runs through the same pipeline as the HTTP API: relevant
document chunks are retrieved from Qdrant, recent conversation history is
injected, and the configured LLM generates the answer. The turn is recorded
in the conversation store; pass --session to continue an earlier
conversation.

Examples:
  ragchat ask "how do I configure retention?"
  ragchat ask --session 5f0c… "and what is the default?"
  ragchat ask --collection manuals --top-k 5 "what does error E42 mean?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc, _, _, cleanup, err := buildChatService(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer cleanup()

			resp, err := svc.ProcessChat(ctx, chat.Request{
				Query:      strings.Join(args, " "),
				SessionID:  sessionID,
				Collection: collection,
				TopK:       topK,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(resp.Answer)

			if showSources && len(resp.Sources) > 0 {
				fmt.Println("\nSources:")
				for i, src := range resp.Sources {
					fmt.Printf("  %d. [%.3f] %s\n", i+1, src.Score, src.Metadata["source"])
				}
			}

			fmt.Printf("\nsession: %s\n", resp.SessionID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID to continue an existing conversation")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Knowledge base collection to search (default from config)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of documents to retrieve (default from config)")
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the retrieved sources after the answer")

	return cmd
}
