package models

// RankedChunk is one hit in a single retrieval ranking. Rank is the 0-based,
// dense position within the ranking that produced it.
type RankedChunk struct {
	Chunk *Chunk  `json:"chunk"`
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

// QueryRoute is the router's classification of a user question.
type QueryRoute string

const (
	RouteList    QueryRoute = "list"
	RouteDetail  QueryRoute = "detail"
	RouteGeneral QueryRoute = "general"
)

// Answer is the final response for a question: the generated text plus the
// resolved parent recipes it was grounded on.
type Answer struct {
	Question  string      `json:"question"`
	Rewritten string      `json:"rewritten,omitempty"`
	Route     QueryRoute  `json:"route"`
	Text      string      `json:"text"`
	Sources   []*Document `json:"sources"`
}
