package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kondate/internal/config"
	"github.com/hyperjump/kondate/internal/embedding"
	"github.com/hyperjump/kondate/internal/models"
)

func testSearchConfig() *config.SearchConfig {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return &cfg.Search
}

func indexChunks() []*models.Chunk {
	return []*models.Chunk{
		{ID: "c1", ParentID: "p1", Content: "# Mapo Tofu\nsoft tofu, ground pork, doubanjiang",
			Metadata: models.Metadata{Category: "meat", Difficulty: "medium"}},
		{ID: "c2", ParentID: "p1", Content: "# Mapo Tofu\n## Steps\nfry the doubanjiang, add tofu",
			Metadata: models.Metadata{Category: "meat", Difficulty: "medium"}},
		{ID: "c3", ParentID: "p2", Content: "# Egg Tart\npuff pastry, custard, sugar",
			Metadata: models.Metadata{Category: "dessert", Difficulty: "easy"}},
		{ID: "c4", ParentID: "p3", Content: "# Tofu Soup\nsilken tofu, scallions, broth",
			Metadata: models.Metadata{Category: "soup", Difficulty: "very_easy"}},
	}
}

func builtIndex(t *testing.T) *DualIndex {
	t.Helper()
	d := NewDualIndex(embedding.NewMockEmbedder(64), testSearchConfig())
	if err := d.Build(context.Background(), indexChunks()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return d
}

func TestBuild_emptyChunks(t *testing.T) {
	d := NewDualIndex(embedding.NewMockEmbedder(64), testSearchConfig())
	if err := d.Build(context.Background(), nil); !errors.Is(err, ErrNoChunks) {
		t.Errorf("expected ErrNoChunks, got %v", err)
	}
}

func TestSearch_beforeBuild(t *testing.T) {
	d := NewDualIndex(embedding.NewMockEmbedder(64), testSearchConfig())
	ctx := context.Background()
	if _, err := d.SemanticSearch(ctx, "tofu", 3); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("semantic: expected ErrNotBuilt, got %v", err)
	}
	if _, err := d.LexicalSearch(ctx, "tofu", 3); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("lexical: expected ErrNotBuilt, got %v", err)
	}
	if _, err := d.HybridSearch(ctx, "tofu", 3); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("hybrid: expected ErrNotBuilt, got %v", err)
	}
	if err := d.Persist(filepath.Join(t.TempDir(), "v.idx")); !errors.Is(err, ErrNotBuilt) {
		t.Errorf("persist: expected ErrNotBuilt, got %v", err)
	}
}

func TestSearch_badLimit(t *testing.T) {
	d := builtIndex(t)
	ctx := context.Background()
	if _, err := d.SemanticSearch(ctx, "tofu", 0); !errors.Is(err, ErrBadLimit) {
		t.Errorf("expected ErrBadLimit, got %v", err)
	}
	if _, err := d.HybridSearch(ctx, "tofu", -1); !errors.Is(err, ErrBadLimit) {
		t.Errorf("expected ErrBadLimit, got %v", err)
	}
}

func TestSemanticSearch_ranksAreDense(t *testing.T) {
	d := builtIndex(t)
	results, err := d.SemanticSearch(context.Background(), "tofu dish", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, rc := range results {
		if rc.Rank != i {
			t.Errorf("rank %d at position %d", rc.Rank, i)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Error("semantic results should be sorted by descending score")
		}
	}
}

func TestLexicalSearch(t *testing.T) {
	d := builtIndex(t)
	results, err := d.LexicalSearch(context.Background(), "custard", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "c3" {
		t.Errorf("expected only c3 for custard, got %+v", results)
	}
}

func TestHybridSearch(t *testing.T) {
	d := builtIndex(t)
	results, err := d.HybridSearch(context.Background(), "tofu", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	seen := make(map[string]bool)
	for _, rc := range results {
		if seen[rc.Chunk.ID] {
			t.Errorf("chunk %s duplicated", rc.Chunk.ID)
		}
		seen[rc.Chunk.ID] = true
	}
}

func TestHybridSearch_noMatchesIsEmptyNotError(t *testing.T) {
	cfg := testSearchConfig()
	d := NewDualIndex(embedding.NewMockEmbedder(64), cfg)
	// Lexical has no hits for an unrelated term; semantic still ranks by
	// similarity, so use topK against an index of one chunk and a query
	// with no lexical overlap to exercise the lexical-empty path.
	if err := d.Build(context.Background(), indexChunks()); err != nil {
		t.Fatal(err)
	}
	results, err := d.HybridSearch(context.Background(), "zzzunmatchedterm", 3)
	if err != nil {
		t.Fatalf("no lexical matches should not error: %v", err)
	}
	if len(results) > 3 {
		t.Errorf("topK not respected: %d", len(results))
	}
}

func TestFilteredSemanticSearch(t *testing.T) {
	d := builtIndex(t)
	results, err := d.FilteredSemanticSearch(context.Background(), "tofu",
		map[string]string{"category": "soup"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "c4" {
		t.Fatalf("expected only the soup chunk, got %+v", results)
	}
	if results[0].Rank != 0 {
		t.Errorf("filtered results should be re-ranked densely, got %d", results[0].Rank)
	}
}

func TestFilteredSemanticSearch_conjunction(t *testing.T) {
	d := builtIndex(t)
	results, err := d.FilteredSemanticSearch(context.Background(), "tofu",
		map[string]string{"category": "meat", "difficulty": "easy"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("conjunction with no satisfying chunk should be empty, got %d", len(results))
	}
}

func TestFilteredSemanticSearch_widensWhenOverfetchTooSmall(t *testing.T) {
	cfg := testSearchConfig()
	cfg.FilterOverfetch = 1
	d := NewDualIndex(embedding.NewMockEmbedder(64), cfg)
	if err := d.Build(context.Background(), indexChunks()); err != nil {
		t.Fatal(err)
	}
	// k=1 with overfetch 1 fetches a single candidate; if that candidate is
	// not a dessert the widening pass must still find the egg tart.
	results, err := d.FilteredSemanticSearch(context.Background(), "custard pastry",
		map[string]string{"category": "dessert"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "c3" {
		t.Errorf("widening should recover the dessert chunk, got %+v", results)
	}
}

func TestPersistLoad_roundTripSameRanking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.idx")
	ctx := context.Background()
	chunks := indexChunks()

	d1 := NewDualIndex(embedding.NewMockEmbedder(64), testSearchConfig())
	if err := d1.Build(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	if err := d1.Persist(path); err != nil {
		t.Fatal(err)
	}

	d2 := NewDualIndex(embedding.NewMockEmbedder(64), testSearchConfig())
	loaded, err := d2.Load(ctx, path, chunks)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded {
		t.Fatal("expected warm start from persisted index")
	}

	want, err := d1.HybridSearch(ctx, "tofu", 4)
	if err != nil {
		t.Fatal(err)
	}
	got, err := d2.HybridSearch(ctx, "tofu", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(want) != len(got) {
		t.Fatalf("result sizes differ: %d vs %d", len(want), len(got))
	}
	for i := range want {
		if want[i].Chunk.ID != got[i].Chunk.ID {
			t.Errorf("rank %d: %s vs %s", i, want[i].Chunk.ID, got[i].Chunk.ID)
		}
	}
}

func TestLoad_missingPathIsColdStart(t *testing.T) {
	d := NewDualIndex(embedding.NewMockEmbedder(64), testSearchConfig())
	loaded, err := d.Load(context.Background(), filepath.Join(t.TempDir(), "missing.idx"), indexChunks())
	if err != nil {
		t.Fatalf("missing index should not error: %v", err)
	}
	if loaded {
		t.Error("missing index should report cold start")
	}
	if _, err := d.SemanticSearch(context.Background(), "tofu", 1); !errors.Is(err, ErrNotBuilt) {
		t.Error("cold start must leave the index unbuilt")
	}
}

func TestRebuild_replacesAtomically(t *testing.T) {
	d := builtIndex(t)
	ctx := context.Background()
	// A failing rebuild (empty chunks) must leave the old index queryable.
	if err := d.Build(ctx, nil); !errors.Is(err, ErrNoChunks) {
		t.Fatal(err)
	}
	if _, err := d.SemanticSearch(ctx, "tofu", 1); err != nil {
		t.Errorf("old index should survive failed rebuild: %v", err)
	}
}
