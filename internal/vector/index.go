// Package vector provides the semantic nearest-neighbor index over chunk embeddings.
package vector

import "context"

// Index defines vector storage and similarity search. Add is append-only;
// there is no removal path, a rebuild replaces the whole index.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	// Save persists the index to path.
	Save(path string) error
	// Load replaces the index contents from path. A missing file is a cold
	// start, reported as (false, nil), not an error.
	Load(path string) (bool, error)
	Size() int
	Close() error
}

// Result is a single vector search hit (ID is a chunk id).
type Result struct {
	ID    string
	Score float64 // inner product; equals cosine similarity for unit vectors
}
