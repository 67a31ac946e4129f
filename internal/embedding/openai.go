package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperjump/kondate/pkg/utils"
)

const defaultBackoffBase = 200 * time.Millisecond

// OpenAIEmbedder produces embeddings via the OpenAI embeddings API.
// Vectors are unit-normalized before being returned. Transient API failures
// (rate limits, 5xx, network errors) are retried with exponential backoff.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
	batchSize  int
	maxRetries int
	cache      *EmbeddingCache
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithCache enables an LRU cache of the given capacity.
func WithCache(capacity int) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if capacity > 0 {
			e.cache = NewEmbeddingCache(capacity)
		}
	}
}

// WithBatchSize caps how many texts are sent per API request.
func WithBatchSize(n int) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithMaxRetries sets the retry budget for transient failures.
func WithMaxRetries(n int) OpenAIOption {
	return func(e *OpenAIEmbedder) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// NewOpenAIEmbedder creates an embedder for the given model and dimension.
func NewOpenAIEmbedder(apiKey, model string, dimensions int, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}
	e := &OpenAIEmbedder{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:      model,
		dimensions: dimensions,
		batchSize:  64,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if emb, ok := e.cache.Get(text); ok {
			return emb, nil
		}
	}
	embs, err := e.requestBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(text, embs[0])
	}
	return embs[0], nil
}

// EmbedBatch embeds texts in API-sized batches, preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := make([]string, 0, e.batchSize)
	pendingIdx := make([]int, 0, e.batchSize)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		embs, err := e.requestBatch(ctx, pending)
		if err != nil {
			return err
		}
		for i, emb := range embs {
			out[pendingIdx[i]] = emb
			if e.cache != nil {
				e.cache.Set(pending[i], emb)
			}
		}
		pending = pending[:0]
		pendingIdx = pendingIdx[:0]
		return nil
	}

	for i, text := range texts {
		if e.cache != nil {
			if emb, ok := e.cache.Get(text); ok {
				out[i] = emb
				continue
			}
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
		if len(pending) >= e.batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// requestBatch calls the embeddings API once per attempt, retrying transient
// failures with exponential backoff.
func (e *OpenAIEmbedder) requestBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(defaultBackoffBase << (attempt - 1)):
			}
		}
		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(e.model),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		})
		if err != nil {
			lastErr = err
			if !isTransient(err) {
				return nil, fmt.Errorf("embeddings request: %w", err)
			}
			continue
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("embeddings request: got %d vectors for %d texts", len(resp.Data), len(texts))
		}
		out := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for j, v := range d.Embedding {
				vec[j] = float32(v)
			}
			utils.NormalizeL2(vec)
			out[i] = vec
		}
		return out, nil
	}
	return nil, fmt.Errorf("embeddings request: retries exhausted: %w", lastErr)
}

// isTransient reports whether an API error is worth retrying.
func isTransient(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// Network-level failures carry no status code.
	return true
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for OpenAIEmbedder.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
