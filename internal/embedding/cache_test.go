package embedding

import (
	"context"
	"sync"
	"testing"
)

func TestEmbeddingCache(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	if v, ok := c.Get("a"); !ok || v[0] != 1 {
		t.Error("a should be cached")
	}
	// "b" is now the LRU entry; adding "c" evicts it.
	c.Set("c", []float32{3})
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should still be cached")
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
}

func TestEmbeddingCache_concurrentGet(t *testing.T) {
	c := NewEmbeddingCache(4)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			keys := []string{"a", "b"}
			for i := 0; i < 1000; i++ {
				key := keys[(i+g)%2]
				if v, ok := c.Get(key); ok && len(v) != 1 {
					t.Errorf("corrupted value for %s", key)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if v, ok := c.Get("a"); !ok || v[0] != 1 {
		t.Error("a should survive concurrent reads")
	}
}

func TestMockEmbedder_deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a1, err := e.Embed(ctx, "mapo tofu")
	if err != nil {
		t.Fatal(err)
	}
	a2, _ := e.Embed(ctx, "mapo tofu")
	b, _ := e.Embed(ctx, "egg tart")
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatal("same text should embed identically")
		}
	}
	same := true
	for i := range a1 {
		if a1[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts should embed differently")
	}
}

func TestMockEmbedder_unitLength(t *testing.T) {
	e := NewMockEmbedder(32)
	emb, err := e.Embed(context.Background(), "hot and sour soup")
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("embedding should be unit length, norm^2 = %f", sum)
	}
}

func TestMockEmbedder_batch(t *testing.T) {
	e := NewMockEmbedder(8)
	embs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(embs) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(embs))
	}
	if e.Dimensions() != 8 {
		t.Errorf("dimensions = %d", e.Dimensions())
	}
}
