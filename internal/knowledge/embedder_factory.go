package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// DefaultOllamaModel is the Ollama tag of all-MiniLM-L6-v2.
const DefaultOllamaModel = "all-minilm"

type EmbedderOptions struct {
	Provider  string
	APIKey    string
	Model     string
	Dimension int
	BaseURL   string
}

// NewEmbedder builds the embedder for the configured provider. Ollama serving
// all-minilm is the default so catalog and queries share one 384-wide space.
func NewEmbedder(ctx context.Context, opts EmbedderOptions) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = "ollama"
	}
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}

	switch provider {
	case "ollama":
		model := opts.Model
		if strings.TrimSpace(model) == "" {
			model = DefaultOllamaModel
		}
		return NewOllamaEmbedder(model, opts.Dimension, opts.BaseURL), nil
	case "openai":
		return NewOpenAIEmbedder(opts.APIKey, opts.Model, opts.Dimension, opts.BaseURL), nil
	case "gemini":
		return NewGeminiEmbedder(ctx, opts.APIKey, opts.Model, opts.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", opts.Provider)
	}
}
