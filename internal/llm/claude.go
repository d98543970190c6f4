package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Nikunikuo/EmotionMemCore/internal/capability"
	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
)

const (
	defaultClaudeModel     = "claude-3-5-haiku-latest"
	defaultClaudeMaxTokens = 500
)

// claudeClassifier is the live backend on the Anthropic API.
type claudeClassifier struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

func newClaude(cfg Config) (*claudeClassifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: claude provider requires an API key")
	}
	model := cfg.Model
	if model == "" {
		model = defaultClaudeModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}
	return &claudeClassifier{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: cfg.Temperature,
	}, nil
}

func (c *claudeClassifier) Classify(ctx context.Context, userMsg, aiMsg string, contextWindow []Turn) (*Result, error) {
	start := time.Now()
	prompt := buildMemoryPrompt(userMsg, aiMsg, contextWindow)

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	p := parseClassifierOutput(b.String())
	if p.degraded {
		slog.Warn("classifier output repaired best-effort",
			"model", c.model,
			"response_length", b.Len(),
		)
	}

	return &Result{
		Summary:  p.summary,
		Emotions: emotion.Validate(emotion.Strings(p.emotions)),
		Degraded: p.degraded,
		Latency:  time.Since(start),
	}, nil
}

// classifyAnthropicError maps API failures onto the capability error
// taxonomy: timeouts, rate limits and 5xx are transient.
func classifyAnthropicError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return capability.Transient("classify", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return capability.Transient("classify", err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 408, apiErr.StatusCode == 429, apiErr.StatusCode >= 500:
			return capability.Transient("classify", err)
		}
	}
	return fmt.Errorf("classify: %w", err)
}
