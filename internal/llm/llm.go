// Package llm turns a conversational pair into a bounded summary and a
// set of emotion labels via a generative text backend. Two
// implementations exist behind the same interface: a live Claude
// backend and a deterministic offline mock, selected by configuration.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/Nikunikuo/EmotionMemCore/internal/capability"
	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
)

// Turn is one prior message supplied as conversational context.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Result is the classifier output. Degraded marks a response that was
// repaired best-effort from malformed backend output.
type Result struct {
	Summary  string
	Emotions []emotion.Label
	Degraded bool
	Latency  time.Duration
}

// Classifier derives {summary, emotions} from a conversational pair.
type Classifier interface {
	Classify(ctx context.Context, userMsg, aiMsg string, contextWindow []Turn) (*Result, error)
}

// Config selects and parameterizes the classifier implementation.
type Config struct {
	Provider    string // "claude" or "mock"
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64

	Retry       capability.RetryPolicy
	Concurrency int
}

// New builds the configured classifier, wrapped with the shared retry
// policy and in-flight cap.
func New(cfg Config) (Classifier, error) {
	var inner Classifier
	switch cfg.Provider {
	case "claude":
		c, err := newClaude(cfg)
		if err != nil {
			return nil, err
		}
		inner = c
	case "mock", "":
		inner = NewMock()
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	return &guarded{
		inner:   inner,
		policy:  cfg.Retry,
		limiter: capability.NewLimiter(cfg.Concurrency),
	}, nil
}

// guarded decorates a classifier with retry-on-transient and a cap on
// concurrent in-flight calls. The slot is held across retries.
type guarded struct {
	inner   Classifier
	policy  capability.RetryPolicy
	limiter *capability.Limiter
}

func (g *guarded) Classify(ctx context.Context, userMsg, aiMsg string, contextWindow []Turn) (*Result, error) {
	var res *Result
	err := g.limiter.Do(ctx, func(ctx context.Context) error {
		return capability.Retry(ctx, g.policy, "classify", func(ctx context.Context) error {
			r, err := g.inner.Classify(ctx, userMsg, aiMsg, contextWindow)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
