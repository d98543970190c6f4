package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nikunikuo/EmotionMemCore/internal/embedding"
	"github.com/Nikunikuo/EmotionMemCore/internal/llm"
)

func newTestRouter(t *testing.T, cfg ServiceConfig) (*chi.Mux, *Service) {
	t.Helper()
	repo, err := NewChromemRepository(svcTestDims)
	require.NoError(t, err)
	svc := NewService(repo, llm.NewMock(), embedding.NewMock(svcTestDims), cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	h := NewHandler(svc)
	r := chi.NewRouter()
	r.Post("/memories", h.Save)
	r.Post("/memories/batch", h.BatchSave)
	r.Post("/memories/search", h.Search)
	r.Get("/memories", h.List)
	r.Get("/memories/{memoryID}", h.Get)
	r.Delete("/memories/{memoryID}", h.Delete)
	r.Get("/stats", h.Stats)
	return r, svc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_SaveSync(t *testing.T) {
	r, _ := newTestRouter(t, ServiceConfig{})

	rec := doJSON(t, r, http.MethodPost, "/memories", map[string]string{
		"user_message": "今日は良い天気ですね！",
		"ai_message":   "そうですね、お散歩日和です♪",
		"owner_id":     "user-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		MemoryID         string   `json:"memory_id"`
		Summary          string   `json:"summary"`
		Emotions         []string `json:"emotions"`
		CreatedAt        string   `json:"created_at"`
		ProcessingTimeMS *int64   `json:"processing_time_ms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.MemoryID)
	assert.NotEmpty(t, resp.Summary)
	assert.NotEmpty(t, resp.Emotions)
	assert.NotEmpty(t, resp.CreatedAt)
	require.NotNil(t, resp.ProcessingTimeMS)
}

func TestHandler_SaveValidation(t *testing.T) {
	r, _ := newTestRouter(t, ServiceConfig{})

	rec := doJSON(t, r, http.MethodPost, "/memories", map[string]string{
		"user_message": "missing everything else",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "ai_message")
}

func TestHandler_SaveMalformedJSON(t *testing.T) {
	r, _ := newTestRouter(t, ServiceConfig{})

	req := httptest.NewRequest(http.MethodPost, "/memories", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_SaveAsync(t *testing.T) {
	r, svc := newTestRouter(t, ServiceConfig{Mode: ModeAsync, QueueSize: 8})

	rec := doJSON(t, r, http.MethodPost, "/memories", map[string]string{
		"user_message": "嬉しいことがあったよ",
		"ai_message":   "よかったですね！",
		"owner_id":     "user-1",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var ack Ack
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.True(t, ack.Queued)
	require.NotEmpty(t, ack.MemoryID)

	require.Eventually(t, func() bool {
		_, err := svc.Get(context.Background(), ack.MemoryID)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHandler_SearchAndShapes(t *testing.T) {
	r, _ := newTestRouter(t, ServiceConfig{})

	rec := doJSON(t, r, http.MethodPost, "/memories", map[string]string{
		"user_message": "今日は良い天気ですね！",
		"ai_message":   "そうですね",
		"owner_id":     "user-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/memories/search", map[string]any{
		"query":       "天気",
		"owner_scope": "user-1",
		"top_k":       3,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []SearchResult `json:"results"`
		Total   int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, len(resp.Results), resp.Total)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "user-1", resp.Results[0].OwnerID)
}

func TestHandler_SearchEmptyQueryReturnsEmptyList(t *testing.T) {
	r, _ := newTestRouter(t, ServiceConfig{})

	rec := doJSON(t, r, http.MethodPost, "/memories/search", map[string]any{"query": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[],"total":0}`, rec.Body.String())
}

func TestHandler_BatchSave(t *testing.T) {
	r, _ := newTestRouter(t, ServiceConfig{})

	rec := doJSON(t, r, http.MethodPost, "/memories/batch", map[string]any{
		"memories": []map[string]string{
			{"user_message": "嬉しい！", "ai_message": "やったね", "owner_id": "u1"},
			{"user_message": "ありがとう", "ai_message": "どういたしまして", "owner_id": "u1"},
			{"user_message": "owner missing", "ai_message": "x"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SuccessCount int            `json:"successful_count"`
		FailedCount  int            `json:"failed_count"`
		Failed       []BatchFailure `json:"failed_items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.SuccessCount)
	assert.Equal(t, 1, resp.FailedCount)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, 2, resp.Failed[0].Index)
}

func TestHandler_ListAndGet(t *testing.T) {
	r, svc := newTestRouter(t, ServiceConfig{})
	ctx := context.Background()

	res, err := svc.Save(ctx, weatherTurn("user-1"))
	require.NoError(t, err)
	_, err = svc.Save(ctx, weatherTurn("user-2"))
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodGet, "/memories?owner_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp struct {
		Memories []*Memory `json:"memories"`
		Total    int64     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Equal(t, int64(1), listResp.Total)
	require.Len(t, listResp.Memories, 1)
	assert.Equal(t, "user-1", listResp.Memories[0].OwnerID)

	rec = doJSON(t, r, http.MethodGet, "/memories/"+res.Memory.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var mem Memory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mem))
	assert.Equal(t, res.Memory.ID, mem.ID)

	rec = doJSON(t, r, http.MethodGet, "/memories/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ListBadTimeRange(t *testing.T) {
	r, _ := newTestRouter(t, ServiceConfig{})
	rec := doJSON(t, r, http.MethodGet, "/memories?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Delete(t *testing.T) {
	r, svc := newTestRouter(t, ServiceConfig{})

	res, err := svc.Save(context.Background(), weatherTurn("user-1"))
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodDelete, "/memories/"+res.Memory.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = doJSON(t, r, http.MethodDelete, "/memories/"+res.Memory.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false}`, rec.Body.String())
}

func TestHandler_Stats(t *testing.T) {
	r, svc := newTestRouter(t, ServiceConfig{})

	_, err := svc.Save(context.Background(), weatherTurn("user-1"))
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		TotalMemories int64            `json:"total_memories"`
		Emotions      map[string]int64 `json:"emotions"`
		Categories    map[string]int64 `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalMemories)
	assert.NotEmpty(t, stats.Emotions)
	assert.NotEmpty(t, stats.Categories)
}

func TestHandler_DuplicateIDConflict(t *testing.T) {
	r, svc := newTestRouter(t, ServiceConfig{})
	svc.newID = func() string { return "fixed-id" }

	body := map[string]string{
		"user_message": "今日は良い天気ですね！",
		"ai_message":   "そうですね",
		"owner_id":     "user-1",
	}
	rec := doJSON(t, r, http.MethodPost, "/memories", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/memories", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
