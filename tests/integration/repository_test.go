//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
	"github.com/Nikunikuo/EmotionMemCore/internal/memory"
)

func pgMemory(id, owner string, labels ...emotion.Label) *memory.Memory {
	vec := make([]float32, testDimensions)
	vec[0] = 1
	return &memory.Memory{
		ID:        id,
		OwnerID:   owner,
		Summary:   "summary " + id,
		Emotions:  labels,
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	}
}

func TestPostgresRepository_DuplicateID(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	id := fmt.Sprintf("dup-%d", uniqueID())
	require.NoError(t, env.Repo.Put(ctx, pgMemory(id, "owner-1", emotion.Joy)))

	err := env.Repo.Put(ctx, pgMemory(id, "owner-2", emotion.Sadness))
	assert.ErrorIs(t, err, memory.ErrDuplicateID)

	got, err := env.Repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", got.OwnerID)
}

func TestPostgresRepository_DimensionMismatch(t *testing.T) {
	env := SetupTestEnv(t)

	mem := pgMemory(fmt.Sprintf("dim-%d", uniqueID()), "owner-1", emotion.Joy)
	mem.Embedding = []float32{1, 0}
	err := env.Repo.Put(context.Background(), mem)
	assert.ErrorIs(t, err, memory.ErrDimensionMismatch)
}

func TestPostgresRepository_QueryFilters(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	owner := fmt.Sprintf("qf-%d", uniqueID())
	joyful := pgMemory(fmt.Sprintf("qf-joy-%d", uniqueID()), owner, emotion.Joy)
	sad := pgMemory(fmt.Sprintf("qf-sad-%d", uniqueID()), owner, emotion.Sadness)
	require.NoError(t, env.Repo.Put(ctx, joyful))
	require.NoError(t, env.Repo.Put(ctx, sad))

	vec := make([]float32, testDimensions)
	vec[0] = 1

	results, err := env.Repo.Query(ctx, vec, memory.QueryFilter{
		OwnerScope: owner,
		Emotions:   []emotion.Label{emotion.Sadness},
		TopK:       10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, sad.ID, results[0].MemoryID)
	assert.GreaterOrEqual(t, results[0].Score, 0.0)
	assert.LessOrEqual(t, results[0].Score, 1.0)
}

func TestPostgresRepository_EmotionCounts(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.Repo.Put(ctx, pgMemory(fmt.Sprintf("ec-%d", uniqueID()), "ec-owner", emotion.Gratitude)))

	counts, err := env.Repo.EmotionCounts(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counts[emotion.Gratitude], int64(1))
}
