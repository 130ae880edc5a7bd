// Package chat orchestrates the retrieval-augmented chat pipeline: session
// management, history injection, vector retrieval, prompt assembly, answer
// generation, persistence, and conversation summarization. Each request walks
// the stages in a fixed order with a per-stage failure policy — some stages
// degrade, some abort.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eblahq/ragchat/internal/budget"
	"github.com/eblahq/ragchat/internal/llm"
	"github.com/eblahq/ragchat/internal/logging"
	"github.com/eblahq/ragchat/internal/prompt"
	"github.com/eblahq/ragchat/internal/rag"
	"github.com/eblahq/ragchat/internal/store"
)

const (
	// historyPreviewMessages is how many trailing history messages appear in
	// the validation record.
	historyPreviewMessages = 3
	// historyPreviewChars truncates each previewed message.
	historyPreviewChars = 100
	// promptPreviewChars truncates the assembled prompt in the validation record.
	promptPreviewChars = 1000
)

// Config holds the orchestration parameters, resolved once at startup and
// passed in explicitly.
type Config struct {
	// HistoryLimit is how many recent messages are injected into the prompt.
	HistoryLimit int
	// DefaultTopK is the retrieval depth when the request does not set one.
	DefaultTopK int
	// DefaultCollection is the collection searched when the request does not
	// name one.
	DefaultCollection string
	// SummaryMaxMessages bounds how many recent messages a summary covers.
	SummaryMaxMessages int
	// MaxContextTokens bounds the estimated prompt size; history is trimmed
	// oldest-first to fit. Zero disables trimming.
	MaxContextTokens int
}

// withDefaults fills zero values with the documented defaults.
func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 5
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 3
	}
	if c.DefaultCollection == "" {
		c.DefaultCollection = "documents"
	}
	if c.SummaryMaxMessages <= 0 {
		c.SummaryMaxMessages = 50
	}
	return c
}

// Request is one chat turn. Only Query is required.
type Request struct {
	// Query is the user's question.
	Query string
	// SessionID continues an existing conversation. Empty or unknown ids
	// start a fresh session.
	SessionID string
	// Collection names the knowledge base to search. Empty uses the default.
	Collection string
	// TopK is the retrieval depth. Zero uses the default.
	TopK int
}

// Source is one retrieved document returned alongside the answer.
type Source struct {
	// Content is the chunk text.
	Content string
	// Metadata holds the chunk's stored key-value pairs.
	Metadata map[string]string
	// Score is the similarity score from retrieval.
	Score float32
}

// Validation is the introspection record attached to every response. It
// reports what actually went into the prompt, not what was requested.
type Validation struct {
	// UsedContext is true when at least one document was retrieved.
	UsedContext bool
	// UsedHistory is true when prior messages were injected into the prompt.
	UsedHistory bool
	// ContextSources is the number of retrieved documents.
	ContextSources int
	// HistoryPreview holds the last few injected history lines, truncated.
	HistoryPreview []string
	// PromptPreview holds the head of the assembled prompt, truncated.
	PromptPreview string
}

// Response is the outcome of one successful chat turn.
type Response struct {
	// Status is "success" for every returned response; failures surface as
	// errors instead.
	Status string
	// SessionID is the session the turn was recorded under. Callers must
	// read it back — it differs from the request when a fallback occurred.
	SessionID string
	// Query echoes the question.
	Query string
	// Answer is the generated answer.
	Answer string
	// Sources lists the retrieved documents, best match first.
	Sources []Source
	// Validation is the introspection record for this turn.
	Validation Validation
	// CreatedAt is when the response was produced.
	CreatedAt time.Time
}

// Service orchestrates the chat pipeline over its three gateways.
type Service struct {
	store     store.ConversationStore
	retriever rag.Retriever
	generator llm.Generator
	cfg       Config
}

// NewService wires the orchestrator. All three dependencies are required.
func NewService(st store.ConversationStore, retriever rag.Retriever, generator llm.Generator, cfg Config) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("chat: store must not be nil")
	}
	if retriever == nil {
		return nil, fmt.Errorf("chat: retriever must not be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("chat: generator must not be nil")
	}
	return &Service{store: st, retriever: retriever, generator: generator, cfg: cfg.withDefaults()}, nil
}

// ProcessChat runs one request through the full pipeline.
//
// Stage policy:
//   - session resolution falls back to a fresh session on a missing id, with
//     no error to the caller (the new id is in the response)
//   - history retrieval degrades to an empty history on failure
//   - retrieval failure aborts with ErrRetrievalUnavailable
//   - generation failure aborts with ErrGenerationUnavailable
//   - persistence failure is logged and the answer is still returned
//
// Two concurrent requests for the same session may interleave their history
// reads and message writes; message ordering stays stable but either request
// may miss the other's turn in its prompt.
func (s *Service) ProcessChat(ctx context.Context, req Request) (*Response, error) {
	log := logging.FromContext(ctx)

	sessionID, err := s.resolveSession(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("chat: session management failed: %w", err)
	}

	// History degrades to empty rather than failing the request.
	history, err := s.recentHistory(ctx, sessionID)
	if err != nil {
		log.Error("chat: failed to retrieve history, continuing without it",
			slog.String("session_id", sessionID), slog.Any("error", err))
		history = nil
	}

	collection := req.Collection
	if collection == "" {
		collection = s.cfg.DefaultCollection
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	docs, err := s.retriever.Search(ctx, req.Query, collection, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	// Trim history oldest-first so the assembled prompt fits the budget.
	// The fixed cost is everything except history: instructions, context, query.
	if s.cfg.MaxContextTokens > 0 {
		fixedTokens := budget.Estimate(prompt.BuildRAGPrompt(req.Query, docs, ""))
		before := len(history)
		history = budget.TrimHistory(history, fixedTokens, s.cfg.MaxContextTokens)
		if dropped := before - len(history); dropped > 0 {
			log.Debug("chat: trimmed history to fit context budget",
				slog.Int("dropped", dropped), slog.Int("kept", len(history)))
		}
	}

	historyText := formatHistory(history)
	assembled := prompt.BuildRAGPrompt(req.Query, docs, historyText)

	answer, err := s.generator.Generate(ctx, assembled)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}

	// Persistence is best-effort: a storage hiccup must not discard the answer.
	if _, err := s.store.AddMessage(ctx, sessionID, store.RoleUser, req.Query); err != nil {
		log.Error("chat: failed to save user message",
			slog.String("session_id", sessionID), slog.Any("error", err))
	} else if _, err := s.store.AddMessage(ctx, sessionID, store.RoleAssistant, answer); err != nil {
		log.Error("chat: failed to save assistant message",
			slog.String("session_id", sessionID), slog.Any("error", err))
	}

	validation := buildValidation(history, historyText, docs, assembled)
	log.Info("chat: response validation",
		slog.Bool("used_context", validation.UsedContext),
		slog.Bool("used_history", validation.UsedHistory),
		slog.Int("context_sources", validation.ContextSources),
	)

	sources := make([]Source, 0, len(docs))
	for _, d := range docs {
		sources = append(sources, Source{Content: d.Content, Metadata: d.Metadata, Score: d.Score})
	}

	return &Response{
		Status:     "success",
		SessionID:  sessionID,
		Query:      req.Query,
		Answer:     answer,
		Sources:    sources,
		Validation: validation,
		CreatedAt:  time.Now(),
	}, nil
}

// SessionHistory returns the full transcript of a session, oldest first.
// An unknown session id yields ErrSessionNotFound.
func (s *Service) SessionHistory(ctx context.Context, sessionID string) ([]store.Message, error) {
	exists, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("chat: session lookup failed: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	msgs, err := s.store.MessagesBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("chat: history lookup failed: %w", err)
	}
	return msgs, nil
}

// resolveSession returns a usable session id: the caller's when it exists,
// a fresh one otherwise. The fallback is deliberate — an expired or bogus id
// starts a new conversation instead of failing the request.
func (s *Service) resolveSession(ctx context.Context, requested string) (string, error) {
	log := logging.FromContext(ctx)

	if requested == "" {
		id, err := s.store.CreateSession(ctx, "")
		if err != nil {
			return "", err
		}
		log.Info("chat: created new session", slog.String("session_id", id))
		return id, nil
	}

	exists, err := s.store.SessionExists(ctx, requested)
	if err != nil {
		return "", err
	}
	if exists {
		return requested, nil
	}

	id, err := s.store.CreateSession(ctx, "")
	if err != nil {
		return "", err
	}
	log.Warn("chat: requested session not found, created new",
		slog.String("requested", requested), slog.String("session_id", id))
	return id, nil
}

// recentHistory returns the last HistoryLimit messages in chronological order.
func (s *Service) recentHistory(ctx context.Context, sessionID string) ([]store.Message, error) {
	recent, err := s.store.RecentMessages(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	// RecentMessages is newest-first; the prompt needs oldest-first.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

// formatHistory renders messages as "User: …" / "Assistant: …" lines.
func formatHistory(msgs []store.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, displayRole(m.Role)+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// displayRole maps a stored role to its prompt-facing label.
func displayRole(r store.Role) string {
	if r == store.RoleUser {
		return "User"
	}
	return "Assistant"
}

// buildValidation computes the introspection record from what was actually
// injected into the prompt.
func buildValidation(history []store.Message, historyText string, docs []rag.Document, assembled string) Validation {
	var preview []string
	if len(history) > 0 {
		start := len(history) - historyPreviewMessages
		if start < 0 {
			start = 0
		}
		for _, m := range history[start:] {
			preview = append(preview, displayRole(m.Role)+": "+truncate(m.Content, historyPreviewChars))
		}
	}

	return Validation{
		UsedContext:    len(docs) > 0,
		UsedHistory:    len(historyText) > 0,
		ContextSources: len(docs),
		HistoryPreview: preview,
		PromptPreview:  truncate(assembled, promptPreviewChars),
	}
}

// truncate shortens s to max characters, appending "..." when cut.
// Cuts on rune boundaries so multibyte text never yields invalid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
