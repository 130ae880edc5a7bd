package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/eblahq/ragchat/internal/config"
	"github.com/eblahq/ragchat/internal/embedder"
	"github.com/eblahq/ragchat/internal/ingestion"
	"github.com/eblahq/ragchat/internal/logging"
)

// NewIngestCmd constructs the `ragchat ingest` command, which runs the
// document ingestion pipeline to populate the knowledge base.
func NewIngestCmd() *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest document files into the knowledge base",
		Long: `Chunk, embed, and index local document files into the Qdrant vector store.

Each file is split into overlapping character chunks, embedded with the
configured embedding backend, and upserted into the target collection.
Chunk ids are derived from the file path and chunk index, so re-ingesting
a changed file updates its chunks in place.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  ragchat ingest docs/intro.txt docs/faq.txt
  ragchat ingest --collection manuals manuals/*.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised", slog.String("backend", embedder.Backend()))

			qs, err := buildVectorStore(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer qs.Close()

			ragCfg := config.RAGFromEnv()
			if collection == "" {
				collection = ragCfg.Collection
			}

			pipeline, err := ingestion.NewPipeline(emb, qs, &ingestion.Config{
				ChunkSize:    ragCfg.ChunkSize,
				ChunkOverlap: ragCfg.ChunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion",
				slog.String("collection", collection), slog.Int("files", len(args)))

			if err := pipeline.Ingest(ctx, collection, args, func(msg string) {
				log.Info(msg)
			}); err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("files", len(args)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Target collection name (default from config)")

	return cmd
}
