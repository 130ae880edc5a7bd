package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/eblahq/ragchat/internal/logging"
	"github.com/eblahq/ragchat/internal/server"
	"github.com/eblahq/ragchat/internal/tracing"
)

// NewServeCmd constructs the `ragchat serve` command, which starts the HTTP
// server exposing the chat API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragchat HTTP server",
		Long: `Start the ragchat HTTP server on localhost.

The server exposes a JSON REST API:
  POST /api/v1/chat                    run one chat turn
  GET  /api/v1/history/{session_id}    fetch a session transcript
  GET  /api/health                     liveness
  GET  /api/ready                      readiness (probes Qdrant and SQLite)
  GET  /metrics                        Prometheus metrics

Set RAGCHAT_API_KEY to require Bearer authentication on the /api/v1 routes.

Examples:
  ragchat serve
  ragchat serve --port 9090
  MODEL_PROVIDER=openai ragchat serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			svc, st, qs, cleanup, err := buildChatService(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer cleanup()

			pingers := []server.Pinger{
				server.NewQdrantPinger(qs),
				server.NewStorePinger(st),
			}

			srv, err := server.New(svc, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("RAGCHAT_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on")

	return cmd
}
