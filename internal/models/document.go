// Package models defines core data structures for recipe documents, chunks, and results.
package models

// DocType marks whether a record is a full recipe or a split fragment of one.
type DocType string

const (
	DocTypeParent DocType = "parent"
	DocTypeChild  DocType = "child"
)

// Metadata is the fixed metadata schema shared by documents and chunks.
// Category and Difficulty are derived once at load time and never change.
type Metadata struct {
	Source     string  `json:"source"`
	Category   string  `json:"category"`
	DishName   string  `json:"dish_name"`
	Difficulty string  `json:"difficulty"`
	DocType    DocType `json:"doc_type"`
}

// Document is a full source recipe, immutable after load.
type Document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Chunk is a heading-bounded fragment of a parent document, the unit of retrieval.
// SequenceIndex is the 0-based position within the parent's chunk sequence.
// Size is the chunk content length in bytes.
type Chunk struct {
	ID            string   `json:"id"`
	ParentID      string   `json:"parent_id"`
	Content       string   `json:"content"`
	SequenceIndex int      `json:"sequence_index"`
	Size          int      `json:"size"`
	Metadata      Metadata `json:"metadata"`
}

// Field returns the metadata value for a schema key, used by exact-match
// metadata filters. Unknown keys report ok=false.
func (m Metadata) Field(key string) (string, bool) {
	switch key {
	case "source":
		return m.Source, true
	case "category":
		return m.Category, true
	case "dish_name":
		return m.DishName, true
	case "difficulty":
		return m.Difficulty, true
	case "doc_type":
		return string(m.DocType), true
	default:
		return "", false
	}
}

// Matches reports whether the metadata satisfies an exact-match conjunction
// over the given key/value pairs.
func (m Metadata) Matches(filter map[string]string) bool {
	for k, want := range filter {
		got, ok := m.Field(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}
