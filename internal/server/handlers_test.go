package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kondate/internal/config"
	"github.com/hyperjump/kondate/internal/embedding"
	"github.com/hyperjump/kondate/internal/llm"
	"github.com/hyperjump/kondate/internal/rag"
	"github.com/hyperjump/kondate/internal/retrieval"
	"github.com/hyperjump/kondate/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Data.Path = filepath.Join(t.TempDir(), "recipes")

	recipes := map[string]string{
		"meat_dish/mapo_tofu.md": "# Mapo Tofu ★★★\n\n## Ingredients\nsoft tofu, ground pork\n\n## Steps\nfry, simmer",
		"dessert/egg_tart.md":    "# Egg Tart ★★\n\n## Ingredients\npuff pastry, custard",
	}
	for rel, content := range recipes {
		path := filepath.Join(cfg.Data.Path, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cs := store.NewChunkStore(cfg.Data.Path, cfg.Data.Extensions, cfg.Search.HeadingLevels)
	index := retrieval.NewDualIndex(embedding.NewMockEmbedder(32), &cfg.Search)
	system := rag.NewSystem(cs, index, nil, llm.NewMockClient(), cfg)
	if err := system.Bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { system.Close() })
	return NewServer(system, &cfg.Server, zap.NewNop())
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["documents"].(float64) != 2 {
		t.Errorf("expected 2 documents, got %v", resp["documents"])
	}
	if resp["stale"].(bool) {
		t.Error("fresh index should not be stale")
	}
}

func TestHandleSearch(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv.Router(), "/api/v1/search", searchRequest{Query: "custard", TopK: 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Query   string            `json:"query"`
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Query != "custard" {
		t.Errorf("query not echoed: %q", resp.Query)
	}
	if len(resp.Results) == 0 {
		t.Error("expected search results")
	}
}

func TestHandleSearch_BadRequest(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv.Router(), "/api/v1/search", searchRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty query should be rejected, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte("{broken")))
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("malformed body should be rejected, got %d", rec2.Code)
	}
}

func TestHandleAsk(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv.Router(), "/api/v1/ask", askRequest{Question: "recommend a tofu dish"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Route   string            `json:"route"`
		Text    string            `json:"text"`
		Sources []json.RawMessage `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Route != "list" {
		t.Errorf("expected list route, got %q", resp.Route)
	}
	if resp.Text == "" || len(resp.Sources) == 0 {
		t.Errorf("expected answer text and sources, got %+v", resp)
	}
}

func TestHandleAsk_MissingQuestion(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv.Router(), "/api/v1/ask", askRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty question should be rejected, got %d", rec.Code)
	}
}
