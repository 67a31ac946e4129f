// Package lexical provides term-frequency scoring over chunk texts via Bleve.
package lexical

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/kondate/internal/models"
)

// Result is a single lexical search hit.
type Result struct {
	ID    string
	Score float64
}

// Index is an in-memory Bleve index over chunk contents. It is built once per
// session from the chunk set and never mutated afterwards.
type Index struct {
	index bleve.Index
}

// Build creates an in-memory index over the given chunks, keyed by chunk id.
// Chunk texts are analyzed with the standard analyzer (lowercase + tokenize,
// no stemming) so recipe terms match exactly as written.
func Build(chunks []*models.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunk set must not be empty")
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create lexical index: %w", err)
	}

	batch := index.NewBatch()
	for _, chunk := range chunks {
		if err := batch.Index(chunk.ID, map[string]string{"content": chunk.Content}); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to batch chunk %s: %w", chunk.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to index chunks: %w", err)
	}
	return &Index{index: index}, nil
}

// Search runs a match query over chunk contents and returns up to k results,
// best first.
func (i *Index) Search(ctx context.Context, query string, k int) ([]*Result, error) {
	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = k
	results, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for j, hit := range results.Hits {
		out[j] = &Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DocCount returns the number of indexed chunks.
func (i *Index) DocCount() (uint64, error) {
	return i.index.DocCount()
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}
