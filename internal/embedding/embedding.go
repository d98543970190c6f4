// Package embedding turns text into fixed-dimension vectors. A live
// OpenAI backend and a deterministic offline mock sit behind the same
// interface, selected by configuration. Unlike the classifier there is
// no fallback that fabricates vectors for a live index: exhausting
// retries is terminal for the enclosing save.
package embedding

import (
	"context"
	"fmt"

	"github.com/Nikunikuo/EmotionMemCore/internal/capability"
)

// Embedder converts text to an embedding vector of fixed size.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Config selects and parameterizes the embedder implementation.
type Config struct {
	Provider   string // "openai" or "mock"
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int

	Retry       capability.RetryPolicy
	Concurrency int
}

// New builds the configured embedder, wrapped with the shared retry
// policy and in-flight cap.
func New(cfg Config) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case "openai":
		e, err := newOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		inner = e
	case "mock", "":
		inner = NewMock(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
	return &guarded{
		inner:   inner,
		policy:  cfg.Retry,
		limiter: capability.NewLimiter(cfg.Concurrency),
	}, nil
}

type guarded struct {
	inner   Embedder
	policy  capability.RetryPolicy
	limiter *capability.Limiter
}

func (g *guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := g.limiter.Do(ctx, func(ctx context.Context) error {
		return capability.Retry(ctx, g.policy, "embed", func(ctx context.Context) error {
			v, err := g.inner.Embed(ctx, text)
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (g *guarded) Dimensions() int { return g.inner.Dimensions() }
