// Package integration provides end-to-end tests over the full retrieval pipeline.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kondate/internal/config"
	"github.com/hyperjump/kondate/internal/embedding"
	"github.com/hyperjump/kondate/internal/llm"
	"github.com/hyperjump/kondate/internal/models"
	"github.com/hyperjump/kondate/internal/rag"
	"github.com/hyperjump/kondate/internal/retrieval"
	"github.com/hyperjump/kondate/internal/storage"
	"github.com/hyperjump/kondate/internal/store"
)

var recipes = map[string]string{
	"meat_dish/mapo_tofu.md":     "# Mapo Tofu ★★★\n\n## Ingredients\nsoft tofu, ground pork, doubanjiang, sichuan pepper\n\n## Steps\nfry the doubanjiang until fragrant, add stock, slide in tofu, simmer and thicken",
	"meat_dish/braised_pork.md":  "# Braised Pork Belly ★★★★\n\n## Ingredients\npork belly, soy sauce, rock sugar\n\n## Steps\nblanch, caramelize the sugar, braise low and slow",
	"soup/tofu_soup.md":          "# Tofu Soup ★\n\n## Ingredients\nsilken tofu, scallions, broth\n\n## Steps\nboil the broth, slide in the tofu, scatter scallions",
	"dessert/egg_tart.md":        "# Egg Tart ★★\n\n## Ingredients\npuff pastry, custard, sugar\n\n## Steps\nblind bake the shells, pour the custard, bake until just set",
	"vegetable_dish/stir_fry.md": "# Garlic Greens ★\n\n## Ingredients\nseasonal greens, garlic\n\n## Steps\nsmash the garlic, flash fry on high heat",
}

func writeRecipeTree(t *testing.T, root string) {
	t.Helper()
	for rel, content := range recipes {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestIntegration_Pipeline(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Data.Path = filepath.Join(dir, "recipes")
	cfg.Storage.DatabasePath = filepath.Join(dir, "catalog.db")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "vectors.idx")
	writeRecipeTree(t, cfg.Data.Path)

	ctx := context.Background()

	cs := store.NewChunkStore(cfg.Data.Path, cfg.Data.Extensions, cfg.Search.HeadingLevels)
	index := retrieval.NewDualIndex(embedding.NewMockEmbedder(64), &cfg.Search)
	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	system := rag.NewSystem(cs, index, catalog, llm.NewMockClient(), cfg)
	defer system.Close()

	if err := system.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	if system.DocumentCount() != len(recipes) {
		t.Fatalf("expected %d documents, got %d", len(recipes), system.DocumentCount())
	}

	// Every document splits into at least its governing heading span.
	if system.ChunkCount() < system.DocumentCount() {
		t.Errorf("expected at least one chunk per document, got %d chunks", system.ChunkCount())
	}

	// Metadata enrichment flows through the pipeline.
	for _, doc := range cs.Documents() {
		if doc.Metadata.Category == "" || doc.Metadata.DishName == "" {
			t.Errorf("document %s missing enriched metadata: %+v", doc.ID, doc.Metadata)
		}
	}

	// Hybrid retrieval finds the lexically distinctive recipe.
	hits, err := system.Search(ctx, "custard pastry", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hybrid search hits")
	}
	foundTart := false
	for _, hit := range hits {
		if hit.Chunk.Metadata.DishName == "egg_tart" {
			foundTart = true
		}
	}
	if !foundTart {
		t.Error("expected the egg tart among custard hits")
	}

	// Full ask lifecycle resolves chunks back to parent recipes.
	answer, err := system.Ask(ctx, "how to make mapo tofu")
	if err != nil {
		t.Fatal(err)
	}
	if answer.Route != models.RouteDetail {
		t.Errorf("expected detail route, got %s", answer.Route)
	}
	if len(answer.Sources) == 0 {
		t.Fatal("expected resolved parent sources")
	}
	for _, src := range answer.Sources {
		if src.Metadata.DocType != models.DocTypeParent {
			t.Errorf("source %s is a %s, want parent", src.ID, src.Metadata.DocType)
		}
	}

	// A second process over the same storage warm starts and ranks identically.
	cs2 := store.NewChunkStore(cfg.Data.Path, cfg.Data.Extensions, cfg.Search.HeadingLevels)
	index2 := retrieval.NewDualIndex(embedding.NewMockEmbedder(64), &cfg.Search)
	catalog2, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	system2 := rag.NewSystem(cs2, index2, catalog2, llm.NewMockClient(), cfg)
	defer system2.Close()

	if err := system2.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	if !system2.WarmStart() {
		t.Fatal("expected warm start from persisted state")
	}

	hits2, err := system2.Search(ctx, "custard pastry", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != len(hits2) {
		t.Fatalf("ranking size changed across restart: %d vs %d", len(hits), len(hits2))
	}
	for i := range hits {
		if hits[i].Chunk.ID != hits2[i].Chunk.ID {
			t.Errorf("rank %d changed across restart: %s vs %s", i, hits[i].Chunk.ID, hits2[i].Chunk.ID)
		}
	}
}
