package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
)

// Sentinel errors of the persistence layer.
var (
	// ErrDuplicateID rejects a put whose id already exists. Memories
	// are append-only: an id is never overwritten, and never reused
	// after deletion.
	ErrDuplicateID = errors.New("memory: duplicate id")

	// ErrNotFound is returned by Get for an unknown id. Delete treats
	// an unknown id as a no-op instead.
	ErrNotFound = errors.New("memory: not found")

	// ErrDimensionMismatch rejects a put whose embedding size differs
	// from the store's fixed dimensionality.
	ErrDimensionMismatch = errors.New("memory: embedding dimension mismatch")
)

// ValidationError reports bad caller input. It is never retried and
// surfaces to the caller immediately.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// QueryFilter narrows a similarity query with exact-match conditions
// applied before ranking.
type QueryFilter struct {
	// OwnerScope is an owner id, or ScopeAll for cross-owner search.
	OwnerScope string
	// Emotions, when non-empty, requires a non-empty intersection
	// with the memory's labels.
	Emotions []emotion.Label
	// TimeRange, when set, bounds created_at inclusively.
	TimeRange *TimeRange
	// TopK caps the number of results.
	TopK int
}

// ListFilter narrows and pages a listing.
type ListFilter struct {
	// OwnerID filters to one owner; empty lists all owners.
	OwnerID   string
	Emotions  []emotion.Label
	TimeRange *TimeRange
	Limit     int
	Offset    int
}

// Repository persists memories over an approximate-nearest-neighbor
// index plus metadata. Implementations guarantee read-your-writes
// (a successful Put is visible to every subsequent Query/List/Get),
// atomic commit per id, and a constant embedding dimensionality.
type Repository interface {
	// Put inserts by id, rejecting duplicates with ErrDuplicateID.
	Put(ctx context.Context, mem *Memory) error

	// Query applies the exact-match filters first, then ranks the
	// remaining records by cosine similarity to vector, ties broken
	// by more-recent created_at.
	Query(ctx context.Context, vector []float32, f QueryFilter) ([]SearchResult, error)

	// List returns a page ordered by created_at descending, along
	// with the total number of matching records.
	List(ctx context.Context, f ListFilter) ([]*Memory, int64, error)

	// Get returns the memory with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*Memory, error)

	// Delete removes a record. Deleting an absent id is a successful
	// no-op with found=false.
	Delete(ctx context.Context, id string) (found bool, err error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// EmotionCounts returns how many memories carry each label.
	EmotionCounts(ctx context.Context) (map[emotion.Label]int64, error)
}
