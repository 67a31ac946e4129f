package retrieval

import (
	"context"
	"sync"

	"github.com/hyperjump/kondate/internal/models"
)

// HybridSearch runs semantic and lexical search at the configured internal
// breadth, fuses the two rankings with RRF, and truncates to topK. The two
// sub-searches have no ordering dependency and run concurrently; fusion
// happens only after both complete. An index where neither method matches
// anything yields an empty result, not an error.
func (d *DualIndex) HybridSearch(ctx context.Context, query string, topK int) ([]*models.RankedChunk, error) {
	if topK < 1 {
		return nil, ErrBadLimit
	}
	d.mu.RLock()
	built := d.vectors != nil
	d.mu.RUnlock()
	if !built {
		return nil, ErrNotBuilt
	}

	var (
		semantic []*models.RankedChunk
		lexHits  []*models.RankedChunk
		semErr   error
		lexErr   error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		semantic, semErr = d.SemanticSearch(ctx, query, d.cfg.Breadth)
	}()
	go func() {
		defer wg.Done()
		lexHits, lexErr = d.LexicalSearch(ctx, query, d.cfg.Breadth)
	}()
	wg.Wait()
	if semErr != nil {
		return nil, semErr
	}
	if lexErr != nil {
		return nil, lexErr
	}

	fused := Fuse(semantic, lexHits, d.cfg.RRFK)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}
