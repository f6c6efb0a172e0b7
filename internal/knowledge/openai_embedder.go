package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOpenAIModel supports shortened output, so it can be asked for
	// 384-wide vectors.
	DefaultOpenAIModel = "text-embedding-3-small"

	defaultOpenAIURL = "https://api.openai.com/v1/embeddings"
)

// OpenAIEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
type OpenAIEmbedder struct {
	client    *http.Client
	apiKey    string
	model     string
	dimension int
	endpoint  string
	batch     batcher
}

type openAIEmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type openAIEmbeddingItem struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type openAIEmbeddingResponse struct {
	Data  []openAIEmbeddingItem `json:"data"`
	Model string                `json:"model"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewOpenAIEmbedder(apiKey, model string, dim int, baseURL string) *OpenAIEmbedder {
	endpoint := strings.TrimSpace(baseURL)
	if endpoint == "" {
		endpoint = defaultOpenAIURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEmbedder{
		client:    &http.Client{Timeout: 30 * time.Second},
		apiKey:    apiKey,
		model:     model,
		dimension: dim,
		endpoint:  endpoint,
		batch: batcher{
			provider:   "openai",
			size:       64,
			pause:      200 * time.Millisecond,
			retries:    3,
			retryDelay: 2 * time.Second,
			transient:  transientHTTP,
		},
	}
}

func (o *OpenAIEmbedder) Dimension() int {
	return o.dimension
}

func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if strings.TrimSpace(o.apiKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	return o.batch.run(ctx, texts, o.dimension, o.embedBatch)
}

func (o *OpenAIEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	payload := openAIEmbeddingRequest{Model: o.model, Input: batch}
	if o.dimension > 0 {
		payload.Dimensions = &o.dimension
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embed request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		var errBody openAIErrorBody
		if json.Unmarshal(data, &errBody) == nil && strings.TrimSpace(errBody.Error.Message) != "" {
			msg = strings.TrimSpace(errBody.Error.Message)
		}
		return nil, &statusError{provider: "openai", code: resp.StatusCode, body: msg}
	}

	var parsed openAIEmbeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("openai embed response: %w", err)
	}
	if len(parsed.Data) != len(batch) {
		return nil, &BatchError{Provider: "openai", Index: -1, Got: len(parsed.Data), Want: len(batch)}
	}

	// Items may arrive in any order; place them by index. A missing or
	// duplicated index leaves an empty slot that checkBatch rejects.
	out := make([][]float32, len(batch))
	for _, item := range parsed.Data {
		if item.Index >= 0 && item.Index < len(batch) {
			out[item.Index] = item.Embedding
		}
	}
	return out, nil
}
