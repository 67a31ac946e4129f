// Package retrieval provides the dual (semantic + lexical) index over chunks
// and rank fusion of the two retrieval methods.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kondate/internal/config"
	"github.com/hyperjump/kondate/internal/embedding"
	"github.com/hyperjump/kondate/internal/lexical"
	"github.com/hyperjump/kondate/internal/models"
	"github.com/hyperjump/kondate/internal/vector"
)

var (
	// ErrNoChunks is returned when Build is invoked with an empty chunk set.
	ErrNoChunks = errors.New("chunk set is empty")
	// ErrNotBuilt is returned when a query or persist is attempted before the
	// index has been built or loaded.
	ErrNotBuilt = errors.New("index not built")
	// ErrBadLimit is returned for non-positive k/topK values.
	ErrBadLimit = errors.New("limit must be at least 1")
)

// DualIndex wraps a semantic nearest-neighbor index and a lexical scoring
// index over the same chunk set. Both are built once per session; a rebuild
// replaces them atomically, so a failed build leaves the old index queryable.
type DualIndex struct {
	embedder embedding.Embedder
	cfg      *config.SearchConfig
	logger   *zap.Logger // optional

	mu         sync.RWMutex
	vectors    vector.Index
	lex        *lexical.Index
	chunksByID map[string]*models.Chunk
	chunkCount int
}

// Option configures a DualIndex.
type Option func(*DualIndex)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(d *DualIndex) { d.logger = l }
}

// NewDualIndex creates an unbuilt dual index using the given embedding
// collaborator and search settings.
func NewDualIndex(embedder embedding.Embedder, cfg *config.SearchConfig, opts ...Option) *DualIndex {
	d := &DualIndex{
		embedder: embedder,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Build embeds every chunk, indexes the vectors, and builds the lexical index
// over the same chunk texts. Fails with ErrNoChunks on an empty set. The new
// structures replace the old ones only after both succeed.
func (d *DualIndex) Build(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return ErrNoChunks
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
		ids[i] = chunk.ID
	}
	embeddings, err := d.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	vectors, err := vector.NewMemoryIndex(d.embedder.Dimensions())
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	if err := vectors.Add(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	lex, err := lexical.Build(chunks)
	if err != nil {
		return fmt.Errorf("failed to build lexical index: %w", err)
	}

	d.swap(vectors, lex, chunks)
	if d.logger != nil {
		d.logger.Debug("dual index built", zap.Int("chunks", len(chunks)))
	}
	return nil
}

// Load restores the semantic index from path and rebuilds the lexical index
// from the given chunks (lexical build is in-memory and cheap; stored vectors
// are never re-embedded). A missing path reports a cold start (false, nil)
// and leaves the current state untouched.
func (d *DualIndex) Load(ctx context.Context, path string, chunks []*models.Chunk) (bool, error) {
	if len(chunks) == 0 {
		return false, ErrNoChunks
	}
	vectors, err := vector.NewMemoryIndex(d.embedder.Dimensions())
	if err != nil {
		return false, err
	}
	loaded, err := vectors.Load(path)
	if err != nil {
		return false, fmt.Errorf("failed to load vector index: %w", err)
	}
	if !loaded {
		return false, nil
	}
	lex, err := lexical.Build(chunks)
	if err != nil {
		return false, fmt.Errorf("failed to build lexical index: %w", err)
	}
	d.swap(vectors, lex, chunks)
	if d.logger != nil {
		d.logger.Debug("dual index loaded", zap.String("path", path), zap.Int("vectors", vectors.Size()))
	}
	return true, nil
}

// Persist writes the semantic index to path. Exclusive with Build on the
// same instance; callers serialize the two.
func (d *DualIndex) Persist(path string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.vectors == nil {
		return ErrNotBuilt
	}
	return d.vectors.Save(path)
}

// swap atomically replaces both index structures and the chunk table.
func (d *DualIndex) swap(vectors vector.Index, lex *lexical.Index, chunks []*models.Chunk) {
	chunksByID := make(map[string]*models.Chunk, len(chunks))
	for _, chunk := range chunks {
		chunksByID[chunk.ID] = chunk
	}
	d.mu.Lock()
	old := d.lex
	d.vectors = vectors
	d.lex = lex
	d.chunksByID = chunksByID
	d.chunkCount = len(chunks)
	d.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// SemanticSearch returns up to k chunks ranked by embedding similarity,
// highest first.
func (d *DualIndex) SemanticSearch(ctx context.Context, query string, k int) ([]*models.RankedChunk, error) {
	if k < 1 {
		return nil, ErrBadLimit
	}
	d.mu.RLock()
	vectors, chunksByID := d.vectors, d.chunksByID
	d.mu.RUnlock()
	if vectors == nil {
		return nil, ErrNotBuilt
	}

	queryVec, err := d.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := vectors.Search(ctx, queryVec, k)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	return rankHits(chunksByID, hitIDs(hits), hitScores(hits)), nil
}

// LexicalSearch returns up to k chunks ranked by lexical relevance score,
// highest first.
func (d *DualIndex) LexicalSearch(ctx context.Context, query string, k int) ([]*models.RankedChunk, error) {
	if k < 1 {
		return nil, ErrBadLimit
	}
	d.mu.RLock()
	lex, chunksByID := d.lex, d.chunksByID
	d.mu.RUnlock()
	if lex == nil {
		return nil, ErrNotBuilt
	}

	hits, err := lex.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	scores := make([]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[i] = h.Score
	}
	return rankHits(chunksByID, ids, scores), nil
}

// FilteredSemanticSearch restricts semantic search to chunks whose metadata
// satisfies an exact-match conjunction over filter. It over-fetches
// FilterOverfetch x k candidates and widens once to the whole index if the
// filtered set is still short.
func (d *DualIndex) FilteredSemanticSearch(ctx context.Context, query string, filter map[string]string, k int) ([]*models.RankedChunk, error) {
	if k < 1 {
		return nil, ErrBadLimit
	}
	d.mu.RLock()
	total := d.chunkCount
	d.mu.RUnlock()

	breadth := k * d.cfg.FilterOverfetch
	results, err := d.filteredAt(ctx, query, filter, breadth)
	if err != nil {
		return nil, err
	}
	if len(results) < k && breadth < total {
		results, err = d.filteredAt(ctx, query, filter, total)
		if err != nil {
			return nil, err
		}
	}
	if len(results) > k {
		results = results[:k]
	}
	return reRank(results), nil
}

func (d *DualIndex) filteredAt(ctx context.Context, query string, filter map[string]string, breadth int) ([]*models.RankedChunk, error) {
	candidates, err := d.SemanticSearch(ctx, query, breadth)
	if err != nil {
		return nil, err
	}
	filtered := candidates[:0]
	for _, rc := range candidates {
		if rc.Chunk.Metadata.Matches(filter) {
			filtered = append(filtered, rc)
		}
	}
	return filtered, nil
}

// rankHits resolves hit ids to chunks and assigns dense 0-based ranks.
// Ids with no chunk in the table are skipped.
func rankHits(chunksByID map[string]*models.Chunk, ids []string, scores []float64) []*models.RankedChunk {
	out := make([]*models.RankedChunk, 0, len(ids))
	for i, id := range ids {
		chunk, ok := chunksByID[id]
		if !ok {
			continue
		}
		out = append(out, &models.RankedChunk{Chunk: chunk, Rank: len(out), Score: scores[i]})
	}
	return out
}

// reRank reassigns dense 0-based ranks after filtering or truncation.
func reRank(results []*models.RankedChunk) []*models.RankedChunk {
	for i, rc := range results {
		rc.Rank = i
	}
	return results
}

func hitIDs(hits []*vector.Result) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

func hitScores(hits []*vector.Result) []float64 {
	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = h.Score
	}
	return scores
}
