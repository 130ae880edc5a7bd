// Package commands defines all Cobra CLI commands for the ragchat binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/eblahq/ragchat/internal/audit"
	"github.com/eblahq/ragchat/internal/config"
	"github.com/eblahq/ragchat/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragchat",
		Short: "EBLA — a retrieval-augmented chat service over your own documents",
		Long: `EBLA is a local-first retrieval-augmented chat service.

It answers questions grounded in a knowledge base of your own documents:
documents are chunked, embedded, and indexed in Qdrant; every chat turn
retrieves the most relevant chunks, injects them into the prompt together
with recent conversation history, and generates an answer with the
configured LLM. Conversations are persisted in SQLite and can be
summarized on demand.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.ragchat/config.yaml).
See 'ragchat --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragchat/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewSummarizeCmd(),
		NewVersionCmd(),
	)

	return root
}
