package ai

import "context"

// QueryEmbedder turns search text into a query vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// DocumentEmbedder turns stored profile text into a document vector.
type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// Completer produces short natural-language text for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Gateway is the full set of external AI operations used by matching.
type Gateway interface {
	QueryEmbedder
	DocumentEmbedder
	Completer
}
