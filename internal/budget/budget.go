// Package budget provides token budget estimation and history trimming for
// the chat pipeline. Because the service supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/eblahq/ragchat/internal/store"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models (Llama 3 8B,
	// GPT-3.5) while leaving room for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// stored messages, summing role + content for each message.
func EstimateMessages(msgs []store.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory removes the oldest messages from history until fixedTokens plus
// the estimated history cost fits within maxTokens. fixedTokens is the
// estimated cost of everything that must not be trimmed (system instructions,
// retrieved context, the current question). history is in chronological order
// and is dropped oldest-first.
//
// Returns the trimmed history slice. If even an empty history exceeds the
// budget, the empty slice is returned — untrimmable content is the caller's
// problem to surface.
func TrimHistory(history []store.Message, fixedTokens, maxTokens int) []store.Message {
	if len(history) == 0 {
		return history
	}

	// History is typically ≤20 messages; a linear scan dropping the oldest
	// is clear and correct.
	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
	}
	return history
}
