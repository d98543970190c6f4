//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SaveSearchDelete(t *testing.T) {
	env := SetupTestEnv(t)
	owner := fmt.Sprintf("user-%d", uniqueID())

	// Save a turn
	resp := DoRequest(t, env, "POST", "/api/v1/memories", map[string]string{
		"user_message": "今日は良い天気ですね！",
		"ai_message":   "そうですね、お散歩日和です♪",
		"owner_id":     owner,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := ParseResponse(t, resp)
	memoryID := saved["memory_id"].(string)
	assert.NotEmpty(t, memoryID)
	assert.NotEmpty(t, saved["summary"])
	assert.NotEmpty(t, saved["emotions"])

	// Search it back
	resp = DoRequest(t, env, "POST", "/api/v1/memories/search", map[string]any{
		"query":       "天気の話",
		"owner_scope": owner,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	searched := ParseResponse(t, resp)
	results := searched["results"].([]any)
	require.NotEmpty(t, results)
	first := results[0].(map[string]any)
	assert.Equal(t, memoryID, first["memory_id"])
	assert.Equal(t, owner, first["owner_id"])

	// Fetch by id
	resp = DoRequest(t, env, "GET", "/api/v1/memories/"+memoryID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := ParseResponse(t, resp)
	assert.Equal(t, owner, got["owner_id"])

	// Delete twice: first removes, second is a no-op
	resp = DoRequest(t, env, "DELETE", "/api/v1/memories/"+memoryID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, ParseResponse(t, resp)["success"])

	resp = DoRequest(t, env, "DELETE", "/api/v1/memories/"+memoryID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, ParseResponse(t, resp)["success"])

	// Gone
	resp = DoRequest(t, env, "GET", "/api/v1/memories/"+memoryID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestMemory_OwnerIsolation(t *testing.T) {
	env := SetupTestEnv(t)
	alice := fmt.Sprintf("alice-%d", uniqueID())
	bob := fmt.Sprintf("bob-%d", uniqueID())

	for _, owner := range []string{alice, bob} {
		resp := DoRequest(t, env, "POST", "/api/v1/memories", map[string]string{
			"user_message": "嬉しいことがあった！",
			"ai_message":   "よかったですね！",
			"owner_id":     owner,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := DoRequest(t, env, "POST", "/api/v1/memories/search", map[string]any{
		"query":       "嬉しい出来事",
		"owner_scope": alice,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	searched := ParseResponse(t, resp)
	results := searched["results"].([]any)
	require.NotEmpty(t, results)
	for _, raw := range results {
		assert.Equal(t, alice, raw.(map[string]any)["owner_id"])
	}
}

func TestMemory_Validation(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "POST", "/api/v1/memories", map[string]string{
		"user_message": "owner missing",
		"ai_message":   "x",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := ParseResponse(t, resp)
	assert.Contains(t, body["error"], "owner_id")
}

func TestMemory_Batch(t *testing.T) {
	env := SetupTestEnv(t)
	owner := fmt.Sprintf("batch-%d", uniqueID())

	resp := DoRequest(t, env, "POST", "/api/v1/memories/batch", map[string]any{
		"memories": []map[string]string{
			{"user_message": "嬉しい！", "ai_message": "やったね", "owner_id": owner},
			{"user_message": "ありがとう", "ai_message": "どういたしまして", "owner_id": owner},
			{"user_message": "owner missing", "ai_message": "x"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := ParseResponse(t, resp)
	assert.Equal(t, float64(2), body["successful_count"])
	assert.Equal(t, float64(1), body["failed_count"])
	failed := body["failed_items"].([]any)
	require.Len(t, failed, 1)
	assert.Equal(t, float64(2), failed[0].(map[string]any)["index"])
}

func TestMemory_ListAndStats(t *testing.T) {
	env := SetupTestEnv(t)
	owner := fmt.Sprintf("list-%d", uniqueID())

	for i := 0; i < 3; i++ {
		resp := DoRequest(t, env, "POST", "/api/v1/memories", map[string]string{
			"user_message": "今日は良い天気ですね！",
			"ai_message":   "そうですね",
			"owner_id":     owner,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := DoRequest(t, env, "GET", "/api/v1/memories?owner_id="+owner+"&limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := ParseResponse(t, resp)
	assert.Equal(t, float64(3), listed["total"])
	assert.Len(t, listed["memories"].([]any), 2)

	resp = DoRequest(t, env, "GET", "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := ParseResponse(t, resp)
	assert.GreaterOrEqual(t, stats["total_memories"].(float64), float64(3))
	assert.NotEmpty(t, stats["emotions"])
}

func TestMemory_Health(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "GET", "/health/ready", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := ParseResponse(t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "healthy", body["store"])
	assert.Equal(t, "healthy", body["redis"])
	assert.Equal(t, "not configured", body["nats"])
}
