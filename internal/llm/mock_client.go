package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kondate/internal/models"
)

// MockClient is a deterministic Client for tests and offline runs. Routing is
// keyword based, rewriting is the identity, and answers summarize the dish
// names of the documents they were given.
type MockClient struct{}

// NewMockClient returns a deterministic client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// RouteQuery routes on trigger words: recommendation phrasing goes to list,
// how-to phrasing goes to detail, everything else to general.
func (c *MockClient) RouteQuery(ctx context.Context, question string) (models.QueryRoute, error) {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "recommend") || strings.Contains(q, "what should"):
		return models.RouteList, nil
	case strings.Contains(q, "how to") || strings.Contains(q, "how do"):
		return models.RouteDetail, nil
	default:
		return models.RouteGeneral, nil
	}
}

// RewriteQuery returns the question unchanged.
func (c *MockClient) RewriteQuery(ctx context.Context, question string) (string, error) {
	return question, nil
}

// GenerateAnswer returns a deterministic summary naming the grounded dishes.
func (c *MockClient) GenerateAnswer(ctx context.Context, route models.QueryRoute, question string, docs []*models.Document) (string, error) {
	if len(docs) == 0 {
		return "no matching recipes found", nil
	}
	names := make([]string, len(docs))
	for i, doc := range docs {
		names[i] = doc.Metadata.DishName
	}
	return fmt.Sprintf("[%s] %s", route, strings.Join(names, ", ")), nil
}

// Close is a no-op for MockClient.
func (c *MockClient) Close() error {
	return nil
}
