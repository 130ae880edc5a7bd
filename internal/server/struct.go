package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eblahq/ragchat/internal/chat"
	"github.com/eblahq/ragchat/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/v1/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all Prometheus metric registrations.
	// If nil, prometheus.DefaultRegisterer is used.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint.
	// If nil, prometheus.DefaultGatherer is used.
	MetricsGatherer prometheus.Gatherer
}

// chatService is the interface the handlers call to run chat turns and read
// transcripts. *chat.Service satisfies it; tests inject a fake.
type chatService interface {
	ProcessChat(ctx context.Context, req chat.Request) (*chat.Response, error)
	SessionHistory(ctx context.Context, sessionID string) ([]store.Message, error)
}

// Server is the HTTP server that exposes the chat service.
type Server struct {
	// chat handles all /api/v1/chat and /api/v1/history requests.
	chat chatService
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus metrics owned by this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/v1/chat.
type chatRequest struct {
	// Query is the user's natural language question.
	Query string `json:"query"`
	// SessionID continues an existing conversation. Optional.
	SessionID string `json:"session_id,omitempty"`
	// CollectionName selects the knowledge base to search. Optional.
	CollectionName string `json:"collection_name,omitempty"`
	// TopK is the number of documents to retrieve. Optional.
	TopK int `json:"top_k,omitempty"`
}

// sourceResponse is one retrieved document in a chat response.
type sourceResponse struct {
	// Content is the chunk text.
	Content string `json:"content"`
	// Metadata holds the chunk's stored key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
	// Score is the similarity score from retrieval.
	Score float32 `json:"score"`
}

// validationResponse reports what actually went into the prompt.
type validationResponse struct {
	// UsedContext is true when at least one document was retrieved.
	UsedContext bool `json:"used_context"`
	// UsedHistory is true when prior messages were injected into the prompt.
	UsedHistory bool `json:"used_history"`
	// ContextSources is the number of retrieved documents.
	ContextSources int `json:"context_sources"`
	// HistoryPreview holds the last few injected history lines, truncated.
	HistoryPreview []string `json:"history_preview,omitempty"`
	// PromptPreview holds the head of the assembled prompt, truncated.
	PromptPreview string `json:"prompt_preview"`
}

// chatResponse is the JSON response for POST /api/v1/chat.
type chatResponse struct {
	// Status is "success" on every 200 response.
	Status string `json:"status"`
	// SessionID is the session the turn was recorded under. Clients must read
	// it back — it differs from the request when a fallback occurred.
	SessionID string `json:"session_id"`
	// Query echoes the question.
	Query string `json:"query"`
	// Answer is the generated answer.
	Answer string `json:"answer"`
	// Sources lists the retrieved documents, best match first.
	Sources []sourceResponse `json:"sources"`
	// Validation is the introspection record for this turn.
	Validation validationResponse `json:"validation"`
	// CreatedAt is when the response was produced, RFC 3339.
	CreatedAt time.Time `json:"created_at"`
}

// historyMessage is one message in a history response.
type historyMessage struct {
	// ID is the message identifier.
	ID string `json:"message_id"`
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// CreatedAt is when the message was persisted, RFC 3339.
	CreatedAt time.Time `json:"created_at"`
}

// historyResponse is the JSON response for GET /api/v1/history/{session_id}.
type historyResponse struct {
	// SessionID is the session whose transcript is returned.
	SessionID string `json:"session_id"`
	// Messages is the full transcript, oldest first.
	Messages []historyMessage `json:"messages"`
}

// errorResponse is the JSON body for every non-2xx API response.
type errorResponse struct {
	// Detail is a human-readable description of the failure.
	Detail string `json:"detail"`
}
