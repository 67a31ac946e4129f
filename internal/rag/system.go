// Package rag wires the chunk store, dual index, catalog, and language-model
// collaborator into the question-answering system.
package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kondate/internal/config"
	"github.com/hyperjump/kondate/internal/llm"
	"github.com/hyperjump/kondate/internal/models"
	"github.com/hyperjump/kondate/internal/retrieval"
	"github.com/hyperjump/kondate/internal/storage"
	"github.com/hyperjump/kondate/internal/store"
	"github.com/hyperjump/kondate/internal/watcher"
)

// System owns the query lifecycle: route, rewrite, retrieve, resolve parents,
// generate. Build it once, Bootstrap it, then Ask repeatedly.
type System struct {
	cfg     *config.Config
	store   *store.ChunkStore
	index   *retrieval.DualIndex
	catalog storage.Catalog
	client  llm.Client
	watch   *watcher.StalenessWatcher
	logger  *zap.Logger

	warmStart bool
}

// Option configures a System.
type Option func(*System)

// WithLogger sets a logger for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(s *System) { s.logger = l }
}

// WithWatcher attaches a staleness watcher, surfaced via Stale.
func WithWatcher(w *watcher.StalenessWatcher) Option {
	return func(s *System) { s.watch = w }
}

// NewSystem assembles the question-answering system. catalog may be nil, in
// which case every start is a cold start and nothing is persisted to SQLite.
func NewSystem(cs *store.ChunkStore, index *retrieval.DualIndex, catalog storage.Catalog, client llm.Client, cfg *config.Config, opts ...Option) *System {
	s := &System{
		cfg:     cfg,
		store:   cs,
		index:   index,
		catalog: catalog,
		client:  client,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap prepares the knowledge base. It first tries a warm start from the
// persisted catalog and vector index; on a cold start it loads, chunks,
// builds, and persists. The lexical index is rebuilt either way.
func (s *System) Bootstrap(ctx context.Context) error {
	if restored, err := s.tryWarmStart(ctx); err != nil {
		if s.logger != nil {
			s.logger.Warn("warm start failed, rebuilding", zap.Error(err))
		}
	} else if restored {
		s.warmStart = true
		if s.logger != nil {
			s.logger.Info("knowledge base restored",
				zap.Int("documents", len(s.store.Documents())),
				zap.Int("chunks", len(s.store.Chunks())))
		}
		return nil
	}
	return s.rebuild(ctx)
}

// tryWarmStart restores store state from the catalog and vectors from the
// persisted index. Both must succeed for a warm start.
func (s *System) tryWarmStart(ctx context.Context) (bool, error) {
	if s.catalog == nil {
		return false, nil
	}
	docs, chunks, err := s.catalog.LoadSnapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("load catalog: %w", err)
	}
	if len(docs) == 0 || len(chunks) == 0 {
		return false, nil
	}
	loaded, err := s.index.Load(ctx, s.cfg.Storage.VectorIndexPath, chunks)
	if err != nil {
		return false, fmt.Errorf("load vector index: %w", err)
	}
	if !loaded {
		return false, nil
	}
	if err := s.store.Restore(docs, chunks); err != nil {
		return false, fmt.Errorf("restore store: %w", err)
	}
	return true, nil
}

// rebuild runs the full cold-start pipeline: load, chunk, build, persist.
func (s *System) rebuild(ctx context.Context) error {
	if _, err := s.store.LoadDocuments(ctx); err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	chunks, err := s.store.ChunkDocuments()
	if err != nil {
		return fmt.Errorf("chunk documents: %w", err)
	}
	if err := s.index.Build(ctx, chunks); err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if path := s.cfg.Storage.VectorIndexPath; path != "" {
		if err := s.index.Persist(path); err != nil {
			return fmt.Errorf("persist vector index: %w", err)
		}
	}
	if s.catalog != nil {
		if err := s.catalog.SaveSnapshot(ctx, s.store.Documents(), chunks); err != nil {
			return fmt.Errorf("save catalog: %w", err)
		}
	}
	if s.logger != nil {
		s.logger.Info("knowledge base built",
			zap.Int("documents", len(s.store.Documents())),
			zap.Int("chunks", len(chunks)))
	}
	return nil
}

// Ask answers a question through the full lifecycle: route, rewrite (list
// queries are retrieved verbatim), hybrid search, parent resolution, generate.
func (s *System) Ask(ctx context.Context, question string) (*models.Answer, error) {
	route, err := s.client.RouteQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}

	query := question
	if route != models.RouteList {
		rewritten, err := s.client.RewriteQuery(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("rewrite: %w", err)
		}
		query = rewritten
	}

	hits, err := s.index.HybridSearch(ctx, query, s.cfg.Search.DefaultTopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	chunks := make([]*models.Chunk, len(hits))
	for i, hit := range hits {
		chunks[i] = hit.Chunk
	}
	parents := s.store.ParentDocuments(chunks)

	text, err := s.client.GenerateAnswer(ctx, route, query, parents)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	answer := &models.Answer{
		Question: question,
		Route:    route,
		Text:     text,
		Sources:  parents,
	}
	if query != question {
		answer.Rewritten = query
	}
	if s.logger != nil {
		s.logger.Debug("question answered",
			zap.String("route", string(route)),
			zap.Int("chunks", len(chunks)),
			zap.Int("sources", len(parents)))
	}
	return answer, nil
}

// Search runs a hybrid search without generation, for the search API.
func (s *System) Search(ctx context.Context, query string, topK int) ([]*models.RankedChunk, error) {
	if topK < 1 {
		topK = s.cfg.Search.DefaultTopK
	}
	return s.index.HybridSearch(ctx, query, topK)
}

// Stale reports whether recipe sources changed since the index was built.
func (s *System) Stale() bool {
	return s.watch != nil && s.watch.Stale()
}

// WarmStart reports whether the last Bootstrap restored persisted state.
func (s *System) WarmStart() bool { return s.warmStart }

// DocumentCount returns the number of loaded parent documents.
func (s *System) DocumentCount() int { return len(s.store.Documents()) }

// ChunkCount returns the number of chunks in the session.
func (s *System) ChunkCount() int { return len(s.store.Chunks()) }

// Close releases the catalog and language-model collaborator.
func (s *System) Close() error {
	if s.watch != nil {
		s.watch.Stop()
	}
	var firstErr error
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
