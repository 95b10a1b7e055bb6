package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/parametric-claims/internal/adapter/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completionBody(content string) string {
	resp := map[string]any{
		"model": "gpt-4",
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]int{"prompt_tokens": 412, "completion_tokens": 96},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestClient_Complete(t *testing.T) {
	var gotAuth, gotContentType string
	var gotReq struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Temperature float64 `json:"temperature"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = io.WriteString(w, completionBody(`{"decision":"approved"}`))
	}))
	defer srv.Close()

	c := llm.NewClient(srv.URL, "sk-test", "gpt-4", 5*time.Second, discardLogger())
	text, err := c.Complete(context.Background(), "You are a claims adjuster.", "Evaluate this claim.")
	require.NoError(t, err)

	assert.Equal(t, `{"decision":"approved"}`, text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "gpt-4", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "You are a claims adjuster.", gotReq.Messages[0].Content)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	assert.InDelta(t, 0.1, gotReq.Temperature, 1e-9)
}

func TestClient_Complete_TrimsWhitespace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, completionBody("\n  verdict  \n"))
	}))
	defer srv.Close()

	c := llm.NewClient(srv.URL, "sk-test", "gpt-4", 5*time.Second, discardLogger())
	text, err := c.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "verdict", text)
}

func TestClient_Complete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"rate limit exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := llm.NewClient(srv.URL, "sk-test", "gpt-4", 5*time.Second, discardLogger())
	_, err := c.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"model":"gpt-4","choices":[]}`)
	}))
	defer srv.Close()

	c := llm.NewClient(srv.URL, "sk-test", "gpt-4", 5*time.Second, discardLogger())
	_, err := c.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestClient_Complete_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, completionBody("   "))
	}))
	defer srv.Close()

	c := llm.NewClient(srv.URL, "sk-test", "gpt-4", 5*time.Second, discardLogger())
	_, err := c.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty content")
}

func TestClient_Complete_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := llm.NewClient(srv.URL, "sk-test", "gpt-4", time.Minute, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, "s", "u")
	require.Error(t, err)
}
