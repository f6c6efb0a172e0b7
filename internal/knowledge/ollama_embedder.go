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

// DefaultOllamaURL is where a local Ollama server listens.
const DefaultOllamaURL = "http://127.0.0.1:11434"

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint. The
// configured dimension is sent as "dimensions" so models that support
// shortened output return vectors the catalog index can hold.
type OllamaEmbedder struct {
	client    *http.Client
	model     string
	dimension int
	endpoint  string
	batch     batcher
}

type ollamaEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

func NewOllamaEmbedder(model string, dim int, baseURL string) *OllamaEmbedder {
	endpoint := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if endpoint == "" {
		endpoint = DefaultOllamaURL
	}
	if !strings.HasSuffix(endpoint, "/api/embed") {
		endpoint += "/api/embed"
	}

	return &OllamaEmbedder{
		client:    &http.Client{Timeout: 30 * time.Second},
		model:     model,
		dimension: dim,
		endpoint:  endpoint,
		// Ollama answers 503 while it loads a model; a short retry covers it.
		batch: batcher{
			provider:   "ollama",
			size:       32,
			pause:      50 * time.Millisecond,
			retries:    2,
			retryDelay: time.Second,
			transient:  transientHTTP,
		},
	}
}

func (o *OllamaEmbedder) Dimension() int {
	return o.dimension
}

func (o *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if strings.TrimSpace(o.model) == "" {
		return nil, fmt.Errorf("ollama embedding model is required")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	return o.batch.run(ctx, texts, o.dimension, o.embedBatch)
}

func (o *OllamaEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: batch, Dimensions: o.dimension})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{provider: "ollama", code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("ollama embed response: %w", err)
	}
	return parsed.Embeddings, nil
}
