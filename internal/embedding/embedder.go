// Package embedding provides the text embedding collaborator and caching.
package embedding

import "context"

// Embedder produces unit-length vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
