package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/toneflow/providers"
	"github.com/BaSui01/toneflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 Groq Provider 测试
// =============================================================================

func newTestProvider(t *testing.T, handler http.HandlerFunc) *GroqProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGroqProvider(providers.GroqConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "llama-3.3-70b-versatile",
		Timeout: 5 * time.Second,
	}, nil)
}

func chatReq() *providers.ChatRequest {
	return &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "rewrite the text"},
			{Role: providers.RoleUser, Content: "hey what's up"},
		},
		MaxTokens:   1024,
		Temperature: 0.7,
	}
}

func TestCompletion_Success(t *testing.T) {
	var gotReq openAIRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(openAIResponse{
			ID:    "chatcmpl-1",
			Model: "llama-3.3-70b-versatile",
			Choices: []openAIChoice{
				{Message: openAIMessage{Role: "assistant", Content: "  Greetings, how may I help?  "}},
			},
			Usage: &openAIUsage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
		})
	})

	resp, err := p.Completion(context.Background(), chatReq())
	require.NoError(t, err)

	assert.Equal(t, "llama-3.3-70b-versatile", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, float32(0.7), gotReq.Temperature)

	// 响应内容去除首尾空白
	assert.Equal(t, "Greetings, how may I help?", resp.Content)
	assert.Equal(t, "groq", resp.Provider)
	assert.Equal(t, 28, resp.Usage.TotalTokens)
}

func TestCompletion_ErrorMapping(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		message   string
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, "invalid api key", types.ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, "forbidden", types.ErrForbidden, false},
		{"rate_limited", http.StatusTooManyRequests, "slow down", types.ErrRateLimited, true},
		{"quota", http.StatusBadRequest, "monthly quota exceeded", types.ErrQuotaExceeded, false},
		{"context_too_long", http.StatusBadRequest, "maximum context length exceeded", types.ErrContextTooLong, false},
		{"bad_request", http.StatusBadRequest, "malformed", types.ErrInvalidRequest, false},
		{"unavailable", http.StatusServiceUnavailable, "down", types.ErrUpstreamError, true},
		{"overloaded", 529, "overloaded", types.ErrModelOverloaded, true},
		{"server_error", http.StatusInternalServerError, "boom", types.ErrUpstreamError, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": tc.message},
				})
			})

			_, err := p.Completion(context.Background(), chatReq())
			require.Error(t, err)

			assert.Equal(t, tc.wantCode, types.GetErrorCode(err))
			assert.Equal(t, tc.retryable, types.IsRetryable(err))

			var typed *types.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, tc.message, typed.Message)
			assert.Equal(t, "groq", typed.Provider)
		})
	}
}

func TestCompletion_EmptyChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openAIResponse{ID: "chatcmpl-2"})
	})

	_, err := p.Completion(context.Background(), chatReq())
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestCompletion_ContextCancelled(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Completion(ctx, chatReq())
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamTimeout, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestHealthCheck(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)

	p = newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	status, err = p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
}

func TestNewGroqProvider_Defaults(t *testing.T) {
	p := NewGroqProvider(providers.GroqConfig{APIKey: "k"}, nil)
	assert.Equal(t, "https://api.groq.com/openai/v1", p.cfg.BaseURL)
	assert.Equal(t, "groq", p.Name())
}
