package ai

import "errors"

var (
	// ErrNotConfigured means the AI path was requested without credentials or a gateway.
	ErrNotConfigured = errors.New("ai gateway is not configured")
	// ErrEmbeddingService wraps any failure of the embedding API after retries.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrCompletionService wraps any failure of the chat-completion API after retries.
	ErrCompletionService = errors.New("completion service error")
)
