package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Nikunikuo/EmotionMemCore/internal/capability"
)

const defaultOpenAIModel = "text-embedding-3-small"

// knownDimensions maps OpenAI embedding models to their native vector
// size, used when the configuration does not pin one.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

type openAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

func newOpenAI(cfg Config) (*openAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedding: openai provider requires an API key")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		if d, ok := knownDimensions[model]; ok {
			dims = d
		} else {
			return nil, fmt.Errorf("embedding: dimensions required for model %q", model)
		}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &openAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		dimensions: dims,
	}, nil
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" {
		return nil, errors.New("embedding: empty text")
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding: empty response")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("embedding: got %d dimensions, want %d", len(vec), e.dimensions)
	}
	return vec, nil
}

func (e *openAIEmbedder) Dimensions() int { return e.dimensions }

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return capability.Transient("embed", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return capability.Transient("embed", err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 408, apiErr.HTTPStatusCode == 429, apiErr.HTTPStatusCode >= 500:
			return capability.Transient("embed", err)
		}
	}
	return fmt.Errorf("embed: %w", err)
}
