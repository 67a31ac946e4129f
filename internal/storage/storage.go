// Package storage defines the persistence interface for the recipe catalog.
//
// The catalog mirrors the in-memory chunk store so a restart can warm-start
// without re-reading and re-splitting the data directory.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kondate/internal/models"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("storage: not found")

// Catalog persists the document and chunk snapshot produced by an ingest run.
type Catalog interface {
	// SaveSnapshot replaces the stored catalog with the given documents and
	// chunks atomically.
	SaveSnapshot(ctx context.Context, docs []*models.Document, chunks []*models.Chunk) error

	// LoadSnapshot returns the full stored catalog. Both slices are empty
	// when the catalog has never been written.
	LoadSnapshot(ctx context.Context) ([]*models.Document, []*models.Chunk, error)

	// GetDocument returns a single document by ID.
	GetDocument(ctx context.Context, id string) (*models.Document, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
