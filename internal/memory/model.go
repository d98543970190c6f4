package memory

import (
	"time"

	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
)

// SummaryMaxLen bounds a memory summary, in runes.
const SummaryMaxLen = 1000

// ScopeAll requests cross-owner search or listing.
const ScopeAll = "all"

// Memory is one persisted record: a summarized conversational turn
// with emotion labels and its embedding. Immutable once created;
// records are only ever appended and deleted, never updated.
type Memory struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	SessionID string          `json:"session_id,omitempty"`
	Summary   string          `json:"summary"`
	Emotions  []emotion.Label `json:"emotions"`
	Embedding []float32       `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

// clone returns a deep copy so callers can never mutate stored state.
func (m *Memory) clone() *Memory {
	out := *m
	out.Emotions = append([]emotion.Label(nil), m.Emotions...)
	out.Embedding = append([]float32(nil), m.Embedding...)
	return &out
}

// ConversationTurn is the transient save input. It is never persisted
// as-is; only the derived summary survives.
type ConversationTurn struct {
	UserMessage string `json:"user_message" validate:"required,max=10000"`
	AIMessage   string `json:"ai_message" validate:"required,max=10000"`
	OwnerID     string `json:"owner_id" validate:"required,max=256"`
	SessionID   string `json:"session_id,omitempty" validate:"max=256"`
}

// TimeRange bounds created_at inclusively. A zero Start or End leaves
// that side open.
type TimeRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the range.
func (r *TimeRange) Contains(t time.Time) bool {
	if r == nil {
		return true
	}
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// SearchQuery is the search input: query text plus exact-match filters.
type SearchQuery struct {
	Text       string     `json:"query"`
	OwnerScope string     `json:"owner_scope,omitempty"`
	TopK       int        `json:"top_k,omitempty" validate:"omitempty,min=1"`
	Emotions   []string   `json:"emotions,omitempty"`
	TimeRange  *TimeRange `json:"time_range,omitempty"`
}

// SearchResult is one ranked hit. Score is cosine similarity clamped
// to [0, 1].
type SearchResult struct {
	MemoryID  string          `json:"memory_id"`
	OwnerID   string          `json:"owner_id"`
	Summary   string          `json:"summary"`
	Emotions  []emotion.Label `json:"emotions"`
	Score     float64         `json:"score"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListQuery pages through memories, newest first.
type ListQuery struct {
	OwnerID   string     `json:"owner_id,omitempty"`
	Emotions  []string   `json:"emotions,omitempty"`
	TimeRange *TimeRange `json:"time_range,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// Ack acknowledges an accepted asynchronous save before the pipeline
// has run.
type Ack struct {
	MemoryID string `json:"memory_id"`
	Queued   bool   `json:"queued"`
}

// SaveResult is the sync-mode save output.
type SaveResult struct {
	Memory         *Memory       `json:"memory"`
	Degraded       bool          `json:"degraded,omitempty"`
	ProcessingTime time.Duration `json:"-"`
}

// BatchFailure identifies one failed item of a batch by input index.
type BatchFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResult reports per-item outcomes of a batch save.
type BatchResult struct {
	SuccessCount int            `json:"successful_count"`
	FailedCount  int            `json:"failed_count"`
	Failed       []BatchFailure `json:"failed_items"`
	Memories     []*Memory      `json:"-"`
}

// Stats summarizes the store for dashboards.
type Stats struct {
	TotalMemories int64                      `json:"total_memories"`
	Emotions      map[emotion.Label]int64    `json:"emotions"`
	Categories    map[emotion.Category]int64 `json:"categories"`
}
