package chat

import "errors"

// Sentinel errors classify pipeline failures by stage so the HTTP layer can
// map each kind to the right status without parsing messages.
var (
	// ErrRetrievalUnavailable indicates the knowledge-base search stage
	// failed: the index was unreachable or the collection lookup errored.
	ErrRetrievalUnavailable = errors.New("chat: knowledge base search failed")

	// ErrGenerationUnavailable indicates the model backend failed to
	// produce a completion.
	ErrGenerationUnavailable = errors.New("chat: generation service unavailable")

	// ErrSessionNotFound indicates a read-only lookup referenced a session
	// that does not exist. ProcessChat never returns it — an unknown session
	// id there falls back to a fresh session instead.
	ErrSessionNotFound = errors.New("chat: session not found")

	// ErrSummarization indicates summary generation failed.
	ErrSummarization = errors.New("chat: summarization failed")
)
