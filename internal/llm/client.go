// Package llm defines the language-model collaborator used for query routing,
// query rewriting, and answer generation.
package llm

import (
	"context"

	"github.com/hyperjump/kondate/internal/models"
)

// Client is the language-model collaborator. Implementations must be safe for
// concurrent use.
type Client interface {
	// RouteQuery classifies a question as a list, detail, or general query.
	RouteQuery(ctx context.Context, question string) (models.QueryRoute, error)

	// RewriteQuery rewrites a question into a retrieval-friendly form.
	RewriteQuery(ctx context.Context, question string) (string, error)

	// GenerateAnswer produces the final answer for a question, grounded on
	// the resolved recipe documents, in the style the route calls for.
	GenerateAnswer(ctx context.Context, route models.QueryRoute, question string, docs []*models.Document) (string, error)

	Close() error
}
