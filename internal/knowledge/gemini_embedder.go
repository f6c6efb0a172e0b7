package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// DefaultGeminiModel accepts an output dimensionality, so it can produce
// 384-wide vectors.
const DefaultGeminiModel = "text-embedding-004"

// GeminiEmbedder embeds through the Gemini API, asking for vectors of the
// configured dimension.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	batch     batcher
}

func NewGeminiEmbedder(ctx context.Context, apiKey string, modelName string, dim int) (*GeminiEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiEmbedder{
		client:    client,
		model:     modelName,
		dimension: dim,
		batch: batcher{
			provider:   "gemini",
			size:       50,
			pause:      500 * time.Millisecond,
			retries:    3,
			retryDelay: 5 * time.Second,
			transient:  isRateLimitError,
		},
	}, nil
}

func (g *GeminiEmbedder) Dimension() int {
	return g.dimension
}

func (g *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return g.batch.run(ctx, texts, g.dimension, g.embedBatch)
}

func (g *GeminiEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var config *genai.EmbedContentConfig
	if g.dimension > 0 {
		dim := int32(g.dimension)
		config = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	contents := make([]*genai.Content, 0, len(batch))
	for _, text := range batch {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	res, err := g.client.Models.EmbedContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini embed request failed: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	out := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		if emb == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, emb.Values)
	}
	return out, nil
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr.Code == 429 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "RESOURCE_EXHAUSTED") || strings.Contains(s, "quota")
}
