package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
)

const chromemCollection = "emotion_memories"

// ChromemRepository is the embedded store: a chromem-go collection for
// vector ranking plus a mutex-guarded metadata map that carries the
// exact-match filters, duplicate detection and listing chromem does
// not provide. Everything lives in process memory, so writes are
// immediately visible to readers.
type ChromemRepository struct {
	mu   sync.RWMutex
	byID map[string]*Memory
	col  *chromem.Collection
	dims int
}

// NewChromemRepository creates an empty embedded store with the given
// fixed embedding dimensionality.
func NewChromemRepository(dims int) (*ChromemRepository, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("memory: invalid embedding dimensionality %d", dims)
	}
	db := chromem.NewDB()
	col, err := db.CreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating chromem collection: %w", err)
	}
	return &ChromemRepository{
		byID: make(map[string]*Memory),
		col:  col,
		dims: dims,
	}, nil
}

func (r *ChromemRepository) Put(ctx context.Context, mem *Memory) error {
	if len(mem.Embedding) != r.dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(mem.Embedding), r.dims)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[mem.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, mem.ID)
	}

	stored := mem.clone()
	err := r.col.AddDocument(ctx, chromem.Document{
		ID:        stored.ID,
		Content:   stored.Summary,
		Embedding: stored.Embedding,
		Metadata: map[string]string{
			"owner_id": stored.OwnerID,
		},
	})
	if err != nil {
		return fmt.Errorf("adding document: %w", err)
	}

	r.byID[stored.ID] = stored
	return nil
}

func (r *ChromemRepository) Query(ctx context.Context, vector []float32, f QueryFilter) ([]SearchResult, error) {
	if len(vector) != r.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), r.dims)
	}

	// The read lock is held across the vector query itself: Put and
	// Delete take the write lock, so the owner count stays an exact
	// bound for nResults, which chromem caps at the number of
	// matching documents.
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := 0
	for _, m := range r.byID {
		if f.OwnerScope == ScopeAll || m.OwnerID == f.OwnerScope {
			candidates++
		}
	}

	if candidates == 0 {
		return nil, nil
	}

	var where map[string]string
	if f.OwnerScope != ScopeAll {
		where = map[string]string{"owner_id": f.OwnerScope}
	}

	hits, err := r.col.QueryEmbedding(ctx, vector, candidates, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		m, ok := r.byID[hit.ID]
		if !ok {
			continue
		}
		if len(f.Emotions) > 0 && !labelsIntersect(m.Emotions, f.Emotions) {
			continue
		}
		if !f.TimeRange.Contains(m.CreatedAt) {
			continue
		}
		results = append(results, SearchResult{
			MemoryID:  m.ID,
			OwnerID:   m.OwnerID,
			Summary:   m.Summary,
			Emotions:  append([]emotion.Label(nil), m.Emotions...),
			Score:     clampScore(float64(hit.Similarity)),
			CreatedAt: m.CreatedAt,
		})
	}

	sortResults(results)

	if f.TopK > 0 && len(results) > f.TopK {
		results = results[:f.TopK]
	}
	return results, nil
}

func (r *ChromemRepository) List(ctx context.Context, f ListFilter) ([]*Memory, int64, error) {
	r.mu.RLock()
	matched := make([]*Memory, 0, len(r.byID))
	for _, m := range r.byID {
		if f.OwnerID != "" && m.OwnerID != f.OwnerID {
			continue
		}
		if len(f.Emotions) > 0 && !labelsIntersect(m.Emotions, f.Emotions) {
			continue
		}
		if !f.TimeRange.Contains(m.CreatedAt) {
			continue
		}
		matched = append(matched, m)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		// uuid v7 ids are time-ordered, so lexically later means newer.
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	page := make([]*Memory, len(matched))
	for i, m := range matched {
		page[i] = m.clone()
	}
	return page, total, nil
}

func (r *ChromemRepository) Get(ctx context.Context, id string) (*Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.clone(), nil
}

func (r *ChromemRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; !exists {
		return false, nil
	}
	if err := r.col.Delete(ctx, nil, nil, id); err != nil {
		return false, fmt.Errorf("deleting document: %w", err)
	}
	delete(r.byID, id)
	return true, nil
}

func (r *ChromemRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byID)), nil
}

func (r *ChromemRepository) EmotionCounts(ctx context.Context) (map[emotion.Label]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[emotion.Label]int64)
	for _, m := range r.byID {
		for _, l := range m.Emotions {
			counts[l]++
		}
	}
	return counts, nil
}

func labelsIntersect(have []emotion.Label, want []emotion.Label) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// sortResults orders by score descending, ties broken by more-recent
// created_at.
func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
}
