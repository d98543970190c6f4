package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nikunikuo/EmotionMemCore/internal/capability"
	"github.com/Nikunikuo/EmotionMemCore/internal/embedding"
	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
	"github.com/Nikunikuo/EmotionMemCore/internal/llm"
)

const svcTestDims = 64

func newTestService(t *testing.T, cfg ServiceConfig) *Service {
	t.Helper()
	repo, err := NewChromemRepository(svcTestDims)
	require.NoError(t, err)
	svc := NewService(repo, llm.NewMock(), embedding.NewMock(svcTestDims), cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

func weatherTurn(owner string) *ConversationTurn {
	return &ConversationTurn{
		UserMessage: "今日は良い天気ですね！",
		AIMessage:   "そうですね、お散歩日和です♪",
		OwnerID:     owner,
	}
}

func TestService_SaveAndSearch(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	res, err := svc.Save(ctx, weatherTurn("user-1"))
	require.NoError(t, err)
	require.NotNil(t, res.Memory)
	assert.NotEmpty(t, res.Memory.ID)
	assert.NotEmpty(t, res.Memory.Summary)
	assert.Contains(t, res.Memory.Emotions, emotion.Joy)
	assert.False(t, res.Memory.CreatedAt.IsZero())
	for _, l := range res.Memory.Emotions {
		assert.True(t, emotion.Valid(l), "unexpected label %s", l)
	}

	results, err := svc.Search(ctx, &SearchQuery{Text: "天気の話", OwnerScope: "user-1"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, res.Memory.ID, results[0].MemoryID)
	assert.Equal(t, "user-1", results[0].OwnerID)
}

func TestService_SaveValidation(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	tests := []struct {
		name  string
		turn  *ConversationTurn
		field string
	}{
		{"missing owner", &ConversationTurn{UserMessage: "a", AIMessage: "b"}, "owner_id"},
		{"missing user message", &ConversationTurn{AIMessage: "b", OwnerID: "u"}, "user_message"},
		{"missing ai message", &ConversationTurn{UserMessage: "a", OwnerID: "u"}, "ai_message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(ctx, tt.turn)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestService_SaveOversizedMessage(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})

	big := make([]rune, 10001)
	for i := range big {
		big[i] = 'あ'
	}
	_, err := svc.Save(context.Background(), &ConversationTurn{
		UserMessage: string(big),
		AIMessage:   "ok",
		OwnerID:     "user-1",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "user_message", verr.Field)
}

func TestService_DuplicateIDLeavesOriginal(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	svc.newID = func() string { return "fixed-id" }
	ctx := context.Background()

	first, err := svc.Save(ctx, weatherTurn("user-1"))
	require.NoError(t, err)

	_, err = svc.Save(ctx, &ConversationTurn{
		UserMessage: "悲しいことがあった",
		AIMessage:   "大丈夫ですか？",
		OwnerID:     "user-2",
	})
	assert.ErrorIs(t, err, ErrDuplicateID)

	got, err := svc.Get(ctx, "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, first.Memory.Summary, got.Summary)
	assert.Equal(t, "user-1", got.OwnerID)
}

func TestService_SearchEmptyQueryText(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Save(ctx, weatherTurn("user-1"))
	require.NoError(t, err)

	results, err := svc.Search(ctx, &SearchQuery{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_SearchUnknownEmotionFilter(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Save(ctx, weatherTurn("user-1"))
	require.NoError(t, err)

	results, err := svc.Search(ctx, &SearchQuery{
		Text:     "天気",
		Emotions: []string{"happiness-in-english", "???"},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_SearchOwnerIsolation(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Save(ctx, weatherTurn("alice"))
	require.NoError(t, err)
	_, err = svc.Save(ctx, weatherTurn("bob"))
	require.NoError(t, err)

	results, err := svc.Search(ctx, &SearchQuery{Text: "天気", OwnerScope: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "alice", r.OwnerID)
	}

	results, err = svc.Search(ctx, &SearchQuery{Text: "天気", OwnerScope: ScopeAll})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestService_BatchSavePartialFailure(t *testing.T) {
	svc := newTestService(t, ServiceConfig{BatchParallelism: 2})
	ctx := context.Background()

	turns := []*ConversationTurn{
		weatherTurn("user-1"),
		{UserMessage: "ありがとう！", AIMessage: "どういたしまして", OwnerID: "user-1"},
		{UserMessage: "owner missing", AIMessage: "x"},
	}

	res, err := svc.BatchSave(ctx, turns)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailedCount)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 2, res.Failed[0].Index)
	assert.Contains(t, res.Failed[0].Error, "owner_id")
	assert.Len(t, res.Memories, 2)
}

func TestService_BatchSaveEmpty(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	_, err := svc.BatchSave(context.Background(), nil)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestService_AsyncSaveEventuallyPersists(t *testing.T) {
	svc := newTestService(t, ServiceConfig{Mode: ModeAsync, QueueSize: 8, Workers: 2})
	ctx := context.Background()

	ack, err := svc.SaveAsync(ctx, weatherTurn("user-1"))
	require.NoError(t, err)
	assert.True(t, ack.Queued)
	require.NotEmpty(t, ack.MemoryID)

	require.Eventually(t, func() bool {
		_, err := svc.Get(ctx, ack.MemoryID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	got, err := svc.Get(ctx, ack.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.NotEmpty(t, got.Summary)
}

func TestService_AsyncValidationIsImmediate(t *testing.T) {
	svc := newTestService(t, ServiceConfig{Mode: ModeAsync})
	_, err := svc.SaveAsync(context.Background(), &ConversationTurn{UserMessage: "a", AIMessage: "b"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestService_AsyncQueueFull(t *testing.T) {
	repo, err := NewChromemRepository(svcTestDims)
	require.NoError(t, err)

	release := make(chan struct{})
	classifier := &blockingClassifier{release: release}
	svc := NewService(repo, classifier, embedding.NewMock(svcTestDims), ServiceConfig{
		Mode:      ModeAsync,
		QueueSize: 1,
		Workers:   1,
	})
	t.Cleanup(func() {
		close(release)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	ctx := context.Background()

	// First job occupies the worker, second fills the queue; the
	// third must be rejected.
	_, err = svc.SaveAsync(ctx, weatherTurn("user-1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return classifier.started.Load() > 0
	}, 5*time.Second, time.Millisecond)

	_, err = svc.SaveAsync(ctx, weatherTurn("user-1"))
	require.NoError(t, err)

	_, err = svc.SaveAsync(ctx, weatherTurn("user-1"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

type failingClassifier struct{}

func (failingClassifier) Classify(ctx context.Context, userMsg, aiMsg string, contextWindow []llm.Turn) (*llm.Result, error) {
	return nil, capability.Transient("classify", errors.New("upstream overloaded"))
}

func TestService_SaveClassifierFailurePersistsNothing(t *testing.T) {
	repo, err := NewChromemRepository(svcTestDims)
	require.NoError(t, err)
	svc := NewService(repo, failingClassifier{}, embedding.NewMock(svcTestDims), ServiceConfig{})
	ctx := context.Background()

	_, err = svc.Save(ctx, weatherTurn("user-1"))
	require.Error(t, err)
	assert.True(t, capability.IsTransient(err))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_AsyncClassifierFailureIsNotRaised(t *testing.T) {
	repo, err := NewChromemRepository(svcTestDims)
	require.NoError(t, err)
	svc := NewService(repo, failingClassifier{}, embedding.NewMock(svcTestDims), ServiceConfig{
		Mode:      ModeAsync,
		QueueSize: 4,
		Workers:   1,
	})

	ack, err := svc.SaveAsync(context.Background(), weatherTurn("user-1"))
	require.NoError(t, err)
	require.NotEmpty(t, ack.MemoryID)
	assert.True(t, ack.Queued)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = svc.Get(ctx, ack.MemoryID)
	assert.ErrorIs(t, err, ErrNotFound)
}

type blockingClassifier struct {
	release chan struct{}
	started atomic.Int32
}

func (b *blockingClassifier) Classify(ctx context.Context, userMsg, aiMsg string, contextWindow []llm.Turn) (*llm.Result, error) {
	b.started.Add(1)
	select {
	case <-b.release:
		return nil, errors.New("released")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestService_DeleteAndStats(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	res, err := svc.Save(ctx, weatherTurn("user-1"))
	require.NoError(t, err)
	_, err = svc.Save(ctx, weatherTurn("user-2"))
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalMemories)
	assert.Equal(t, int64(2), stats.Emotions[emotion.Joy])
	assert.Equal(t, int64(4), stats.Categories[emotion.CategoryPositive])

	found, err := svc.Delete(ctx, res.Memory.ID)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = svc.Delete(ctx, res.Memory.ID)
	require.NoError(t, err)
	assert.False(t, found)

	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalMemories)
}

func TestService_ListNewestFirst(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Save(ctx, weatherTurn("user-1"))
		require.NoError(t, err)
	}

	memories, total, err := svc.List(ctx, &ListQuery{OwnerID: "user-1", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, memories, 2)
	assert.False(t, memories[0].CreatedAt.Before(memories[1].CreatedAt))
}
