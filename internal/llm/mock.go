package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
)

// emotionPattern maps a keyword to the labels it implies. Patterns are
// a fixed ordered list so mock output is fully deterministic.
type emotionPattern struct {
	keyword string
	labels  []emotion.Label
}

var mockPatterns = []emotionPattern{
	{"嬉しい", []emotion.Label{emotion.Joy, emotion.Happiness}},
	{"悲しい", []emotion.Label{emotion.Sadness}},
	{"不安", []emotion.Label{emotion.Anxiety, emotion.Fear}},
	{"ありがとう", []emotion.Label{emotion.Gratitude}},
	{"楽しい", []emotion.Label{emotion.Amusement, emotion.Joy}},
	{"怒り", []emotion.Label{emotion.Anger, emotion.Frustration}},
	{"驚き", []emotion.Label{emotion.Surprise}},
	{"恥ずかしい", []emotion.Label{emotion.Shyness, emotion.Shame}},
	{"会えて", []emotion.Label{emotion.Reunion, emotion.Joy}},
	{"寂しい", []emotion.Label{emotion.Loneliness, emotion.Sadness}},
	{"良い天気", []emotion.Label{emotion.Joy, emotion.Relief}},
	{"いい天気", []emotion.Label{emotion.Joy, emotion.Relief}},
	{"頑張", []emotion.Label{emotion.Determination, emotion.Encouragement}},
}

// Mock is the deterministic offline classifier. It produces canned but
// plausible output from keyword patterns, making the rest of the
// pipeline testable without network access.
type Mock struct{}

// NewMock creates the offline classifier.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Classify(ctx context.Context, userMsg, aiMsg string, contextWindow []Turn) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	labels := m.extractEmotions(userMsg + " " + aiMsg)
	if len(labels) == 0 {
		labels = []emotion.Label{emotion.Anticipation}
	}

	return &Result{
		Summary:  m.summarize(userMsg, aiMsg),
		Emotions: labels,
		Latency:  time.Since(start),
	}, nil
}

func (m *Mock) summarize(userMsg, aiMsg string) string {
	switch {
	case strings.Contains(userMsg, "嬉しい") || strings.Contains(userMsg, "楽しい"):
		return "ユーザーが喜びを表現し、AIが共感した会話"
	case strings.Contains(userMsg, "悲しい") || strings.Contains(userMsg, "不安"):
		return "ユーザーがネガティブな感情を表現し、AIが寄り添った会話"
	case strings.Contains(userMsg, "ありがとう"):
		return "ユーザーが感謝を示し、AIが受け止めた会話"
	case strings.Contains(userMsg, "天気"):
		return "ユーザーとAIが天気について語り合った会話"
	case strings.Contains(userMsg, "？") || strings.Contains(userMsg, "?"):
		return "ユーザーの質問にAIが回答した会話"
	case strings.Contains(userMsg, "おはよう") || strings.Contains(userMsg, "こんにちは"):
		return "ユーザーとAIが挨拶を交わした会話"
	default:
		return fmt.Sprintf("ユーザーとAIが%d文字程度の会話をした", utf8.RuneCountInString(userMsg+aiMsg)/10*10)
	}
}

func (m *Mock) extractEmotions(text string) []emotion.Label {
	var out []emotion.Label
	for _, p := range mockPatterns {
		if strings.Contains(text, p.keyword) {
			out = append(out, p.labels...)
		}
	}
	out = dedupeLabels(out)
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}
