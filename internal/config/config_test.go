package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
  max_tokens: 4096
  temperature: 0.3
  ollama:
    host: http://localhost:11434
    model: llama3
embedding:
  provider: ollama
  model: nomic-embed-text
qdrant:
  host: qdrant.internal
  port: 6334
rag:
  chat_history_limit: 8
  default_top_k: 4
  collection: kb-docs
  summary_max_messages: 20
  chunk_size: 800
  chunk_overlap: 100
logging:
  level: debug
  format: text
database:
  path: /var/lib/ragchat/history.db
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
		"OLLAMA_HOST", "OLLAMA_MODEL",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"QDRANT_HOST", "QDRANT_PORT",
		"RAG_CHAT_HISTORY_LIMIT", "RAG_DEFAULT_TOP_K", "RAG_COLLECTION",
		"RAG_SUMMARY_MAX_MESSAGES", "RAG_CHUNK_SIZE", "RAG_CHUNK_OVERLAP",
		"LOG_LEVEL", "LOG_FORMAT", "RAGCHAT_DB",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":           "ollama",
		"MODEL_MAX_TOKENS":         "4096",
		"OLLAMA_HOST":              "http://localhost:11434",
		"OLLAMA_MODEL":             "llama3",
		"EMBEDDING_PROVIDER":       "ollama",
		"EMBEDDING_MODEL":          "nomic-embed-text",
		"QDRANT_HOST":              "qdrant.internal",
		"QDRANT_PORT":              "6334",
		"RAG_CHAT_HISTORY_LIMIT":   "8",
		"RAG_DEFAULT_TOP_K":        "4",
		"RAG_COLLECTION":           "kb-docs",
		"RAG_SUMMARY_MAX_MESSAGES": "20",
		"RAG_CHUNK_SIZE":           "800",
		"RAG_CHUNK_OVERLAP":        "100",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
		"RAGCHAT_DB":               "/var/lib/ragchat/history.db",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading — it should NOT be overwritten.
	t.Setenv("MODEL_PROVIDER", "azure")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "azure" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "azure", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestRAGFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"RAG_CHAT_HISTORY_LIMIT", "RAG_DEFAULT_TOP_K", "RAG_COLLECTION",
		"RAG_SUMMARY_MAX_MESSAGES", "RAG_MAX_CONTEXT_TOKENS",
		"RAG_CHUNK_SIZE", "RAG_CHUNK_OVERLAP",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := RAGFromEnv()
	if cfg.ChatHistoryLimit != 5 {
		t.Errorf("ChatHistoryLimit: got %d, want 5", cfg.ChatHistoryLimit)
	}
	if cfg.DefaultTopK != 3 {
		t.Errorf("DefaultTopK: got %d, want 3", cfg.DefaultTopK)
	}
	if cfg.Collection != "documents" {
		t.Errorf("Collection: got %q, want documents", cfg.Collection)
	}
	if cfg.SummaryMaxMessages != 50 {
		t.Errorf("SummaryMaxMessages: got %d, want 50", cfg.SummaryMaxMessages)
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 50 {
		t.Errorf("chunking: got %d/%d, want 500/50", cfg.ChunkSize, cfg.ChunkOverlap)
	}
}

func TestRAGFromEnv_EnvWins(t *testing.T) {
	t.Setenv("RAG_DEFAULT_TOP_K", "7")
	t.Setenv("RAG_COLLECTION", "manuals")
	t.Setenv("RAG_CHAT_HISTORY_LIMIT", "not-a-number")

	cfg := RAGFromEnv()
	if cfg.DefaultTopK != 7 {
		t.Errorf("DefaultTopK: got %d, want 7", cfg.DefaultTopK)
	}
	if cfg.Collection != "manuals" {
		t.Errorf("Collection: got %q, want manuals", cfg.Collection)
	}
	if cfg.ChatHistoryLimit != 5 {
		t.Errorf("invalid int should fall back: got %d, want 5", cfg.ChatHistoryLimit)
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
