package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/toneflow/cache"
	"github.com/BaSui01/toneflow/internal/ctxkeys"
	"github.com/BaSui01/toneflow/providers"
	"github.com/BaSui01/toneflow/tone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 语气改写 Handler 测试
// =============================================================================

type fakeProvider struct {
	err error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Completion(_ context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &providers.ChatResponse{
		Provider: "fake",
		Model:    "llama-3.3-70b-versatile",
		Content:  "rewritten text",
		Usage:    providers.ChatUsage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
	}, nil
}

func (p *fakeProvider) HealthCheck(context.Context) (*providers.HealthStatus, error) {
	return &providers.HealthStatus{Healthy: true}, nil
}

func newTestHandler(t *testing.T) (*ToneHandler, *http.ServeMux) {
	t.Helper()
	svc := tone.NewService(cache.NewMemoryStore(), &fakeProvider{}, tone.Options{TTL: time.Hour}, nil)
	h := NewToneHandler(svc, nil)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body, identity string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != "" {
		req = req.WithContext(ctxkeys.WithIdentityID(req.Context(), identity))
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleShift(t *testing.T) {
	_, mux := newTestHandler(t)

	body := `{"text":"hey there","style":"professional"}`
	rec := doJSON(t, mux, http.MethodPost, "/api/v1/tone/shift", body, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tone.ShiftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "rewritten text", resp.TransformedText)
	assert.False(t, resp.Cached)

	// 重复请求命中缓存
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/tone/shift", body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, int64(1), resp.CacheHitCount)
}

func TestHandleShift_BadRequests(t *testing.T) {
	_, mux := newTestHandler(t)

	// 非法 JSON
	rec := doJSON(t, mux, http.MethodPost, "/api/v1/tone/shift", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 未知字段被拒绝
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/tone/shift", `{"text":"x","style":"casual","bogus":1}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 缺少必填字段
	rec = doJSON(t, mux, http.MethodPost, "/api/v1/tone/shift", `{"text":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
}

func TestHandleShift_UpstreamFailure(t *testing.T) {
	svc := tone.NewService(cache.NewMemoryStore(), &fakeProvider{err: context.DeadlineExceeded}, tone.Options{TTL: time.Hour}, nil)
	h := NewToneHandler(svc, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/tone/shift", `{"text":"x","style":"casual"}`, "")
	// 非 *types.Error 的上游失败按内部错误兜底
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleQuickShift(t *testing.T) {
	_, mux := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/tone/quick-shift", `{"text":"hey","tone":"formal"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "rewritten text", resp["transformed_text"])
}

func TestHandleBatchShift(t *testing.T) {
	_, mux := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/tone/batch-shift", `{"texts":["a","b"],"style":"concise"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool                  `json:"success"`
		Count   int                   `json:"count"`
		Results []*tone.ShiftResponse `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "a", resp.Results[0].OriginalText)
}

func TestHandleSuggestImprovements(t *testing.T) {
	_, mux := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/tone/suggest-improvements", `{"text":"do it","current_tone":"blunt"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tone.SuggestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "rewritten text", resp.Analysis)
}

func TestHandleListTones(t *testing.T) {
	_, mux := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/tone/tones", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Tones map[string]string `json:"tones"`
			Names []string          `json:"names"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Data.Tones, 13)
	assert.Contains(t, resp.Data.Names, "genz")
}

func TestHandleCacheStats_ScopedByIdentity(t *testing.T) {
	_, mux := newTestHandler(t)

	// user-a 产生一条专属缓存
	rec := doJSON(t, mux, http.MethodPost, "/api/v1/tone/shift", `{"text":"mine","style":"casual"}`, "user-a")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/tone/cache/stats", "", "user-a")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Scope string      `json:"scope"`
			Stats cache.Stats `json:"stats"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "owner", resp.Data.Scope)
	assert.Equal(t, int64(1), resp.Data.Stats.TotalEntries)

	// 匿名只见全局作用域
	rec = doJSON(t, mux, http.MethodGet, "/api/v1/tone/cache/stats", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "global", resp.Data.Scope)
	assert.Equal(t, int64(0), resp.Data.Stats.TotalEntries)
}

func TestHandleCacheClear(t *testing.T) {
	_, mux := newTestHandler(t)

	// 匿名清除被拒绝
	rec := doJSON(t, mux, http.MethodDelete, "/api/v1/tone/cache/clear", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 认证身份可清除自己的条目
	doJSON(t, mux, http.MethodPost, "/api/v1/tone/shift", `{"text":"mine","style":"casual"}`, "user-a")

	rec = doJSON(t, mux, http.MethodDelete, "/api/v1/tone/cache/clear", "", "user-a")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			DeletedCount int64 `json:"deleted_count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Data.DeletedCount)
}

func TestHandleCacheCleanup(t *testing.T) {
	_, mux := newTestHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/tone/cache/cleanup", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			DeletedCount int64 `json:"deleted_count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}
