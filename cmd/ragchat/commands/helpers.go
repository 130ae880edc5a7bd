package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/eblahq/ragchat/internal/chat"
	"github.com/eblahq/ragchat/internal/config"
	"github.com/eblahq/ragchat/internal/embedder"
	"github.com/eblahq/ragchat/internal/llm"
	"github.com/eblahq/ragchat/internal/provider"
	"github.com/eblahq/ragchat/internal/rag"
	"github.com/eblahq/ragchat/internal/store"
)

// openStore opens the SQLite conversation store. RAGCHAT_DB overrides the
// default path (~/.ragchat/history.db).
func openStore(log *slog.Logger) (*store.SQLiteStore, error) {
	dbPath := os.Getenv("RAGCHAT_DB")
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("could not resolve database path: %w", err)
		}
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store at %s: %w", dbPath, err)
	}
	log.Info("conversation store opened", slog.String("path", dbPath))
	return st, nil
}

// buildVectorStore connects to Qdrant using QDRANT_* environment variables.
func buildVectorStore(log *slog.Logger) (*rag.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)

	qs, err := rag.NewQdrantStore(&rag.QdrantConfig{
		Host:   host,
		Port:   port,
		APIKey: os.Getenv("QDRANT_API_KEY"),
		UseTLS: os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("qdrant store ready", slog.String("host", host), slog.Int("port", port))
	return qs, nil
}

// buildRetriever wires the embedder and vector store into a retriever. The
// returned QdrantStore is exposed so callers can register readiness probes
// and must be closed by the caller.
func buildRetriever(log *slog.Logger, ragCfg config.RAGConfig) (rag.Retriever, *rag.QdrantStore, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("backend", embedder.Backend()))

	qs, err := buildVectorStore(log)
	if err != nil {
		return nil, nil, err
	}

	retriever, err := rag.NewRetriever(emb, qs, ragCfg.DefaultTopK)
	if err != nil {
		_ = qs.Close()
		return nil, nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	return retriever, qs, nil
}

// buildGenerator constructs the LLM answer generator from the environment.
func buildGenerator(ctx context.Context, log *slog.Logger) (llm.Generator, error) {
	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")))

	gen, err := llm.NewChatModelGenerator(chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	return gen, nil
}

// buildChatService assembles the full chat pipeline: conversation store,
// retriever, and generator. The returned cleanup closes both stores.
func buildChatService(ctx context.Context, log *slog.Logger) (*chat.Service, *store.SQLiteStore, *rag.QdrantStore, func(), error) {
	st, err := openStore(log)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	ragCfg := config.RAGFromEnv()

	retriever, qs, err := buildRetriever(log, ragCfg)
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, nil, err
	}

	gen, err := buildGenerator(ctx, log)
	if err != nil {
		_ = qs.Close()
		_ = st.Close()
		return nil, nil, nil, nil, err
	}

	svc, err := chat.NewService(st, retriever, gen, chat.Config{
		HistoryLimit:       ragCfg.ChatHistoryLimit,
		DefaultTopK:        ragCfg.DefaultTopK,
		DefaultCollection:  ragCfg.Collection,
		SummaryMaxMessages: ragCfg.SummaryMaxMessages,
		MaxContextTokens:   ragCfg.MaxContextTokens,
	})
	if err != nil {
		_ = qs.Close()
		_ = st.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to create chat service: %w", err)
	}

	cleanup := func() {
		_ = qs.Close()
		_ = st.Close()
	}
	return svc, st, qs, cleanup, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not a valid integer.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
