package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperjump/kondate/internal/models"
	"github.com/hyperjump/kondate/pkg/utils"
)

// maxDocContext caps how much of each recipe document is inlined into a prompt.
const maxDocContext = 4000

const routerSystemPrompt = `You classify cooking questions into exactly one category.
Answer with a single word and nothing else:
- "list" if the user wants dish recommendations or a set of options (e.g. "what should I eat tonight", "recommend some soups")
- "detail" if the user wants to know how to cook a specific dish, step by step
- "general" for any other cooking question`

const rewriteSystemPrompt = `You rewrite cooking questions for a recipe search engine.
Keep the user's intent, expand vague wording into concrete dish, ingredient,
or technique terms, and answer with only the rewritten query.`

// OpenAIClient implements Client using the OpenAI chat completions API.
type OpenAIClient struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAIClient creates a chat client for the given model.
func NewOpenAIClient(apiKey, model string, temperature float64, maxTokens int) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &OpenAIClient{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// RouteQuery classifies a question. Unrecognized model output falls back to
// the general route rather than failing the whole ask.
func (c *OpenAIClient) RouteQuery(ctx context.Context, question string) (models.QueryRoute, error) {
	reply, err := c.complete(ctx, routerSystemPrompt, question, 0, 8)
	if err != nil {
		return "", fmt.Errorf("route query: %w", err)
	}
	switch {
	case strings.Contains(strings.ToLower(reply), "list"):
		return models.RouteList, nil
	case strings.Contains(strings.ToLower(reply), "detail"):
		return models.RouteDetail, nil
	default:
		return models.RouteGeneral, nil
	}
}

// RewriteQuery rewrites a question for retrieval. An empty rewrite falls back
// to the original question.
func (c *OpenAIClient) RewriteQuery(ctx context.Context, question string) (string, error) {
	reply, err := c.complete(ctx, rewriteSystemPrompt, question, c.temperature, 256)
	if err != nil {
		return "", fmt.Errorf("rewrite query: %w", err)
	}
	rewritten := strings.TrimSpace(reply)
	if rewritten == "" {
		return question, nil
	}
	return rewritten, nil
}

// GenerateAnswer produces the final answer grounded on the resolved recipes.
func (c *OpenAIClient) GenerateAnswer(ctx context.Context, route models.QueryRoute, question string, docs []*models.Document) (string, error) {
	var system string
	switch route {
	case models.RouteList:
		system = `You are a recipe recommender. From the recipes below, suggest dishes
that fit the question. Answer with a short list of dish names, one line each,
with a one-sentence reason per dish. Only recommend dishes that appear in the
recipes below.`
	case models.RouteDetail:
		system = `You are a cooking instructor. Using only the recipes below, answer
with clear numbered steps: ingredients first, then preparation, then cooking.
If the recipes do not cover the dish, say so instead of inventing steps.`
	default:
		system = `You are a cooking assistant. Answer the question using only the
recipes below. If they do not contain the answer, say so briefly.`
	}

	prompt := fmt.Sprintf("%s\n\nRecipes:\n%s", question, formatDocs(docs))
	reply, err := c.complete(ctx, system, prompt, c.temperature, c.maxTokens)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func (c *OpenAIClient) complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// formatDocs renders the resolved recipes as a prompt context block, each
// labeled with its dish name and truncated to keep the prompt bounded.
func formatDocs(docs []*models.Document) string {
	if len(docs) == 0 {
		return "(no matching recipes found)"
	}
	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[%s | category: %s | difficulty: %s]\n%s",
			doc.Metadata.DishName, doc.Metadata.Category, doc.Metadata.Difficulty,
			utils.Truncate(doc.Content, maxDocContext))
	}
	return b.String()
}

// Close is a no-op for OpenAIClient.
func (c *OpenAIClient) Close() error {
	return nil
}
