package retrieval

import (
	"sort"

	"github.com/hyperjump/kondate/internal/models"
)

// DefaultRRFK is the reciprocal rank fusion damping constant.
const DefaultRRFK = 60

// Fuse merges two ranked chunk lists into one consensus ranking using
// reciprocal rank fusion. Each list contributes 1/(K+rank+1) for every chunk
// it contains; a chunk's fused score is the sum over both lists. The output
// is the set union ordered by descending fused score; ties keep first-seen
// order scanning the semantic list then the lexical list. Scores are keyed on
// the chunk's stable assigned id, so identical inputs fuse identically across
// runs and processes.
func Fuse(semantic, lexicalResults []*models.RankedChunk, rrfK int) []*models.RankedChunk {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}

	scores := make(map[string]float64)
	chunks := make(map[string]*models.Chunk)
	order := make([]string, 0, len(semantic)+len(lexicalResults))

	accumulate := func(results []*models.RankedChunk) {
		for rank, rc := range results {
			id := rc.Chunk.ID
			if _, seen := scores[id]; !seen {
				order = append(order, id)
				chunks[id] = rc.Chunk
			}
			scores[id] += 1.0 / float64(rrfK+rank+1)
		}
	}
	accumulate(semantic)
	accumulate(lexicalResults)

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	fused := make([]*models.RankedChunk, len(order))
	for i, id := range order {
		fused[i] = &models.RankedChunk{Chunk: chunks[id], Rank: i, Score: scores[id]}
	}
	return fused
}
