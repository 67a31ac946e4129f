// Package storage provides the SQLite implementation of the Catalog interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kondate/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		source TEXT,
		category TEXT,
		dish_name TEXT,
		difficulty TEXT,
		doc_type TEXT
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		content TEXT NOT NULL,
		sequence_index INTEGER NOT NULL,
		size INTEGER NOT NULL,
		source TEXT,
		category TEXT,
		dish_name TEXT,
		difficulty TEXT,
		doc_type TEXT,
		FOREIGN KEY (parent_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_parent_id ON chunks(parent_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_parent_sequence ON chunks(parent_id, sequence_index);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveSnapshot replaces the stored catalog inside a single transaction.
func (c *SQLiteCatalog) SaveSnapshot(ctx context.Context, docs []*models.Document, chunks []*models.Chunk) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return err
	}

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, content, source, category, dish_name, difficulty, doc_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer docStmt.Close()

	for _, doc := range docs {
		m := doc.Metadata
		if _, err := docStmt.ExecContext(ctx, doc.ID, doc.Content,
			m.Source, m.Category, m.DishName, m.Difficulty, m.DocType); err != nil {
			return err
		}
	}

	chunkStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, parent_id, content, sequence_index, size, source, category, dish_name, difficulty, doc_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	for _, chunk := range chunks {
		m := chunk.Metadata
		if _, err := chunkStmt.ExecContext(ctx, chunk.ID, chunk.ParentID, chunk.Content,
			chunk.SequenceIndex, chunk.Size,
			m.Source, m.Category, m.DishName, m.Difficulty, m.DocType); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadSnapshot returns every stored document and chunk. Chunks come back
// grouped by parent and ordered by sequence index.
func (c *SQLiteCatalog) LoadSnapshot(ctx context.Context) ([]*models.Document, []*models.Chunk, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, content, source, category, dish_name, difficulty, doc_type
		 FROM documents ORDER BY source, id`,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Content,
			&doc.Metadata.Source, &doc.Metadata.Category, &doc.Metadata.DishName,
			&doc.Metadata.Difficulty, &doc.Metadata.DocType); err != nil {
			return nil, nil, err
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	chunkRows, err := c.db.QueryContext(ctx,
		`SELECT id, parent_id, content, sequence_index, size, source, category, dish_name, difficulty, doc_type
		 FROM chunks ORDER BY parent_id, sequence_index`,
	)
	if err != nil {
		return nil, nil, err
	}
	defer chunkRows.Close()

	var chunks []*models.Chunk
	for chunkRows.Next() {
		var chunk models.Chunk
		if err := chunkRows.Scan(&chunk.ID, &chunk.ParentID, &chunk.Content,
			&chunk.SequenceIndex, &chunk.Size,
			&chunk.Metadata.Source, &chunk.Metadata.Category, &chunk.Metadata.DishName,
			&chunk.Metadata.Difficulty, &chunk.Metadata.DocType); err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return docs, chunks, chunkRows.Err()
}

// GetDocument returns a document by ID.
func (c *SQLiteCatalog) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := c.db.QueryRowContext(ctx,
		`SELECT id, content, source, category, dish_name, difficulty, doc_type
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Content,
		&doc.Metadata.Source, &doc.Metadata.Category, &doc.Metadata.DishName,
		&doc.Metadata.Difficulty, &doc.Metadata.DocType)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// CountDocuments returns the total number of documents.
func (c *SQLiteCatalog) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (c *SQLiteCatalog) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}
