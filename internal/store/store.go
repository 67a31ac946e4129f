// Package store owns parent recipe documents, derives heading-bounded child
// chunks, and maintains the parent-child index used for parent resolution.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kondate/internal/extract"
	"github.com/hyperjump/kondate/internal/models"
)

var (
	// ErrNotFound is returned when the data root does not exist.
	ErrNotFound = errors.New("data root not found")
	// ErrNotLoaded is returned when chunking is attempted before documents are loaded.
	ErrNotLoaded = errors.New("documents not loaded")
)

// ChunkStore loads parent documents, splits them into chunks, and resolves
// child chunks back to deduplicated ranked parents. Documents and chunks are
// immutable once produced; a loaded set is append-only for the session.
type ChunkStore struct {
	root          string
	extensions    []string
	headingLevels int
	extractor     *extract.Extractor

	documents     []*models.Document
	docsByID      map[string]*models.Document
	chunks        []*models.Chunk
	parentByChunk map[string]string

	logger *zap.Logger // optional; when set, logs debug events
}

// Option configures a ChunkStore.
type Option func(*ChunkStore)

// WithLogger sets a logger for debug output (files loaded, chunks produced).
func WithLogger(l *zap.Logger) Option {
	return func(s *ChunkStore) { s.logger = l }
}

// WithExtractor sets the text extractor used for non-markdown sources.
// When unset, files are read as plain text.
func WithExtractor(e *extract.Extractor) Option {
	return func(s *ChunkStore) { s.extractor = e }
}

// NewChunkStore creates a store over the given data root. extensions filters
// eligible source files (empty = markdown only); headingLevels is clamped to 1-3.
func NewChunkStore(root string, extensions []string, headingLevels int, opts ...Option) *ChunkStore {
	if len(extensions) == 0 {
		extensions = []string{".md"}
	}
	if headingLevels < 1 {
		headingLevels = 1
	}
	if headingLevels > 3 {
		headingLevels = 3
	}
	s := &ChunkStore{
		root:          root,
		extensions:    extensions,
		headingLevels: headingLevels,
		docsByID:      make(map[string]*models.Document),
		parentByChunk: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadDocuments walks the data root recursively and loads one parent document
// per eligible file, assigning a fresh id and enriching metadata. Any prior
// document and chunk state is replaced.
func (s *ChunkStore) LoadDocuments(ctx context.Context) ([]*models.Document, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.root)
		}
		return nil, fmt.Errorf("stat data root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, s.root)
	}

	documents := make([]*models.Document, 0)
	docsByID := make(map[string]*models.Document)
	err = filepath.WalkDir(s.root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !s.extensionAllowed(filepath.Ext(path)) {
			return nil
		}
		content, err := s.readSource(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		doc := &models.Document{
			ID:       uuid.New().String(),
			Content:  content,
			Metadata: enrichMetadata(path, content),
		}
		documents = append(documents, doc)
		docsByID[doc.ID] = doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.documents = documents
	s.docsByID = docsByID
	s.chunks = nil
	s.parentByChunk = make(map[string]string)
	if s.logger != nil {
		s.logger.Debug("documents loaded", zap.String("root", s.root), zap.Int("count", len(documents)))
	}
	return documents, nil
}

// ChunkDocuments splits every loaded parent into heading-bounded chunks and
// rebuilds the parent-child index. Re-invocation replaces prior chunks and
// index entries. Fails with ErrNotLoaded when no documents are loaded.
func (s *ChunkStore) ChunkDocuments() ([]*models.Chunk, error) {
	if len(s.documents) == 0 {
		return nil, ErrNotLoaded
	}

	chunks := make([]*models.Chunk, 0, len(s.documents))
	parentByChunk := make(map[string]string)
	for _, doc := range s.documents {
		spans := splitHeadings(doc.Content, s.headingLevels)
		for i, span := range spans {
			meta := doc.Metadata
			meta.DocType = models.DocTypeChild
			chunk := &models.Chunk{
				ID:            uuid.New().String(),
				ParentID:      doc.ID,
				Content:       span,
				SequenceIndex: i,
				Size:          len(span),
				Metadata:      meta,
			}
			chunks = append(chunks, chunk)
			parentByChunk[chunk.ID] = doc.ID
		}
	}

	s.chunks = chunks
	s.parentByChunk = parentByChunk
	if s.logger != nil {
		s.logger.Debug("documents chunked", zap.Int("documents", len(s.documents)), zap.Int("chunks", len(chunks)))
	}
	return chunks, nil
}

// ParentDocuments maps child chunks back to deduplicated parent documents,
// ordered by descending relevance count (how many input chunks reference the
// parent); ties keep first-encounter order. Unknown parent ids are skipped.
func (s *ChunkStore) ParentDocuments(chunks []*models.Chunk) []*models.Document {
	counts := make(map[string]int)
	order := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk == nil || chunk.ParentID == "" {
			continue
		}
		if _, seen := counts[chunk.ParentID]; !seen {
			order = append(order, chunk.ParentID)
		}
		counts[chunk.ParentID]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	parents := make([]*models.Document, 0, len(order))
	for _, parentID := range order {
		if doc, ok := s.docsByID[parentID]; ok {
			parents = append(parents, doc)
		}
	}
	return parents
}

// Restore replaces store state from a persisted catalog (warm start). Every
// chunk must reference a document in docs.
func (s *ChunkStore) Restore(docs []*models.Document, chunks []*models.Chunk) error {
	docsByID := make(map[string]*models.Document, len(docs))
	for _, doc := range docs {
		docsByID[doc.ID] = doc
	}
	parentByChunk := make(map[string]string, len(chunks))
	for _, chunk := range chunks {
		if _, ok := docsByID[chunk.ParentID]; !ok {
			return fmt.Errorf("chunk %s references unknown parent %s", chunk.ID, chunk.ParentID)
		}
		parentByChunk[chunk.ID] = chunk.ParentID
	}
	s.documents = docs
	s.docsByID = docsByID
	s.chunks = chunks
	s.parentByChunk = parentByChunk
	return nil
}

// Documents returns the loaded parent documents.
func (s *ChunkStore) Documents() []*models.Document { return s.documents }

// Chunks returns the chunks from the last ChunkDocuments or Restore call.
func (s *ChunkStore) Chunks() []*models.Chunk { return s.chunks }

// ParentOf returns the parent id recorded for a chunk id.
func (s *ChunkStore) ParentOf(chunkID string) (string, bool) {
	parentID, ok := s.parentByChunk[chunkID]
	return parentID, ok
}

func (s *ChunkStore) extensionAllowed(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range s.extensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

func (s *ChunkStore) readSource(path string) (string, error) {
	if s.extractor != nil {
		return s.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
