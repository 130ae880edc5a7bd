package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eblahq/ragchat/internal/logging"
	"github.com/eblahq/ragchat/internal/prompt"
)

// NoMessagesSummary is returned when the session has nothing to summarize.
// It is an ordinary outcome, not an error.
const NoMessagesSummary = "No messages to summarize."

// SummarizeSession condenses the most recent messages of a session into a
// short summary, persists it with the covered message range, and returns the
// summary text.
//
// Generation failure aborts with ErrSummarization. Persistence failure does
// not: the text was already paid for, so it is returned and the storage
// failure is logged. The stored summary is an optimization for later
// prompts, not the product of this call.
func (s *Service) SummarizeSession(ctx context.Context, sessionID string) (string, error) {
	log := logging.FromContext(ctx)

	recent, err := s.store.RecentMessages(ctx, sessionID, s.cfg.SummaryMaxMessages)
	if err != nil {
		return "", fmt.Errorf("chat: failed to load messages for summary: %w", err)
	}
	// Newest-first from the store; the transcript reads oldest-first.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}

	if len(recent) == 0 {
		return NoMessagesSummary, nil
	}

	startID := recent[0].ID
	endID := recent[len(recent)-1].ID

	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		lines = append(lines, string(m.Role)+": "+m.Content)
	}
	conversationText := strings.Join(lines, "\n")

	log.Info("chat: generating summary",
		slog.String("session_id", sessionID), slog.Int("messages", len(recent)))

	summaryText, err := s.generator.Generate(ctx, prompt.BuildSummaryPrompt(conversationText))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarization, err)
	}

	if _, err := s.store.CreateSummary(ctx, sessionID, summaryText, startID, endID); err != nil {
		log.Error("chat: failed to persist summary, returning text anyway",
			slog.String("session_id", sessionID), slog.Any("error", err))
		return summaryText, nil
	}

	log.Info("chat: summary saved", slog.String("session_id", sessionID))
	return summaryText, nil
}
