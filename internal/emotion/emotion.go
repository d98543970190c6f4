// Package emotion defines the closed vocabulary of emotion labels that
// memories can carry. The vocabulary is fixed at 38 Japanese labels in
// four categories and is never extended at runtime.
package emotion

// Label is a single emotion tag from the fixed vocabulary.
type Label string

// Category groups labels for analytics and dashboard consumers.
type Category string

const (
	CategoryPositive Category = "positive"
	CategoryNegative Category = "negative"
	CategoryNeutral  Category = "neutral"
	CategoryVTuber   Category = "vtuber"
)

// MaxPerMemory is the maximum number of labels a single memory keeps.
const MaxPerMemory = 5

// Positive emotions.
const (
	Joy          Label = "喜び"
	Happiness    Label = "幸せ"
	Excitement   Label = "興奮"
	Love         Label = "愛情"
	Gratitude    Label = "感謝"
	Hope         Label = "希望"
	Pride        Label = "誇り"
	Relief       Label = "安心"
	Satisfaction Label = "満足"
	Amusement    Label = "楽しさ"
	Confidence   Label = "自信"
	Inspiration  Label = "感動"
)

// Negative emotions.
const (
	Sadness        Label = "悲しみ"
	Anger          Label = "怒り"
	Fear           Label = "恐れ"
	Anxiety        Label = "不安"
	Frustration    Label = "苛立ち"
	Disappointment Label = "失望"
	Loneliness     Label = "孤独"
	Guilt          Label = "罪悪感"
	Shame          Label = "恥"
	Regret         Label = "後悔"
	Jealousy       Label = "嫉妬"
)

// Neutral emotions.
const (
	Surprise     Label = "驚き"
	Curiosity    Label = "好奇心"
	Confusion    Label = "困惑"
	Nostalgia    Label = "懐かしさ"
	Empathy      Label = "共感"
	Sympathy     Label = "同情"
	Anticipation Label = "期待"
)

// VTuber-specific emotions.
const (
	Mischief      Label = "いたずら心"
	Shyness       Label = "恥ずかしさ"
	Determination Label = "決意"
	Reunion       Label = "再会"
	Farewell      Label = "別れ"
	Encouragement Label = "励まし"
	Support       Label = "支え"
	Trust         Label = "信頼"
)

var byCategory = map[Category][]Label{
	CategoryPositive: {Joy, Happiness, Excitement, Love, Gratitude, Hope, Pride, Relief, Satisfaction, Amusement, Confidence, Inspiration},
	CategoryNegative: {Sadness, Anger, Fear, Anxiety, Frustration, Disappointment, Loneliness, Guilt, Shame, Regret, Jealousy},
	CategoryNeutral:  {Surprise, Curiosity, Confusion, Nostalgia, Empathy, Sympathy, Anticipation},
	CategoryVTuber:   {Mischief, Shyness, Determination, Reunion, Farewell, Encouragement, Support, Trust},
}

var categoryOf = func() map[Label]Category {
	m := make(map[Label]Category, 38)
	for cat, labels := range byCategory {
		for _, l := range labels {
			m[l] = cat
		}
	}
	return m
}()

// All returns every label in the vocabulary, grouped by category in a
// stable order.
func All() []Label {
	out := make([]Label, 0, len(categoryOf))
	for _, cat := range []Category{CategoryPositive, CategoryNegative, CategoryNeutral, CategoryVTuber} {
		out = append(out, byCategory[cat]...)
	}
	return out
}

// Labels returns the labels belonging to the given category.
func Labels(cat Category) []Label {
	src := byCategory[cat]
	out := make([]Label, len(src))
	copy(out, src)
	return out
}

// Valid reports whether l is part of the vocabulary.
func Valid(l Label) bool {
	_, ok := categoryOf[l]
	return ok
}

// CategoryOf returns the category of a label, if it is in the vocabulary.
func CategoryOf(l Label) (Category, bool) {
	cat, ok := categoryOf[l]
	return cat, ok
}

// Normalize drops labels outside the vocabulary and deduplicates while
// preserving the relative order of the input. It never fails; input
// with no valid labels yields an empty result.
func Normalize(raw []string) []Label {
	seen := make(map[Label]struct{}, len(raw))
	out := make([]Label, 0, len(raw))
	for _, r := range raw {
		l := Label(r)
		if !Valid(l) {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// Validate normalizes raw labels and truncates the result to
// MaxPerMemory, preserving the classifier's relative ordering.
func Validate(raw []string) []Label {
	out := Normalize(raw)
	if len(out) > MaxPerMemory {
		out = out[:MaxPerMemory]
	}
	return out
}

// Strings converts labels back to their wire representation.
func Strings(labels []Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}
