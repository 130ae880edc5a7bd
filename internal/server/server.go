// Package server implements the HTTP server that exposes the RAG chat
// service via a JSON REST API, plus health, readiness, and metrics endpoints.
// The server is started by the `ragchat serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eblahq/ragchat/internal/chat"
	"github.com/eblahq/ragchat/internal/logging"
)

// Client-facing failure messages. Internal error detail stays in the logs.
const (
	detailRetrievalFailed    = "Failed to search knowledge base"
	detailGenerationFailed   = "AI service is currently unavailable"
	detailUnexpectedFailure  = "An unexpected error occurred"
	detailSessionNotFound    = "Session not found"
	detailInvalidRequestBody = "invalid request body"
	detailQueryRequired      = "query is required"
	detailTopKOutOfRange     = "top_k must be between 1 and 10"
)

// maxTopK bounds the per-request retrieval depth. Zero means "not set" and
// falls through to the configured default.
const maxTopK = 10

// New constructs a Server from the provided chat service and config.
func New(svc chatService, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("server: chat service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full retrieval + generation round trip.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		chat:    svc,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: no API key configured, authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/chat", s.instrument("chat",
		rl.middleware(authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleChat)))))
	mux.Handle("GET /api/v1/history/{session_id}", s.instrument("history",
		authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleHistory))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/v1/chat. It runs one chat turn through the
// pipeline and returns the answer, sources, and validation record as JSON.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: detailInvalidRequestBody})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: detailQueryRequired})
		return
	}
	if req.TopK != 0 && (req.TopK < 1 || req.TopK > maxTopK) {
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: detailTopKOutOfRange})
		return
	}

	s.metrics.chatActiveRequests.Inc()
	defer s.metrics.chatActiveRequests.Dec()

	resp, err := s.chat.ProcessChat(r.Context(), chat.Request{
		Query:      req.Query,
		SessionID:  req.SessionID,
		Collection: req.CollectionName,
		TopK:       req.TopK,
	})
	if err != nil {
		s.writeChatError(w, r, err)
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeError).Inc()
		s.metrics.chatDurationSeconds.WithLabelValues(outcomeError).Observe(time.Since(start).Seconds())
		return
	}

	sources := make([]sourceResponse, 0, len(resp.Sources))
	for _, src := range resp.Sources {
		sources = append(sources, sourceResponse{
			Content:  src.Content,
			Metadata: src.Metadata,
			Score:    src.Score,
		})
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Status:    resp.Status,
		SessionID: resp.SessionID,
		Query:     resp.Query,
		Answer:    resp.Answer,
		Sources:   sources,
		Validation: validationResponse{
			UsedContext:    resp.Validation.UsedContext,
			UsedHistory:    resp.Validation.UsedHistory,
			ContextSources: resp.Validation.ContextSources,
			HistoryPreview: resp.Validation.HistoryPreview,
			PromptPreview:  resp.Validation.PromptPreview,
		},
		CreatedAt: resp.CreatedAt,
	})

	s.metrics.chatRequestsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcomeOK).Observe(time.Since(start).Seconds())
}

// writeChatError maps a pipeline error to its HTTP status and client-facing
// detail message. The full error chain is logged, never sent to the client.
func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	status := http.StatusInternalServerError
	detail := detailUnexpectedFailure
	switch {
	case errors.Is(err, chat.ErrRetrievalUnavailable):
		detail = detailRetrievalFailed
	case errors.Is(err, chat.ErrGenerationUnavailable):
		status = http.StatusServiceUnavailable
		detail = detailGenerationFailed
	}

	log.Error("chat request failed",
		slog.Int("status", status),
		slog.Any("error", err),
	)
	writeJSON(w, status, errorResponse{Detail: detail})
}

// handleHistory handles GET /api/v1/history/{session_id}. It returns the full
// transcript of a session, oldest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	msgs, err := s.chat.SessionHistory(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Detail: detailSessionNotFound})
			return
		}
		log := logging.FromContext(r.Context())
		log.Error("history request failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: detailUnexpectedFailure})
		return
	}

	out := historyResponse{SessionID: sessionID, Messages: make([]historyMessage, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, historyMessage{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
