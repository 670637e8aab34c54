package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"neural-garden/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJudgeCompleteSendsChatCompletion(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"No"}}]}`))
	}))
	defer srv.Close()

	c := NewJudgeClient("sk-test", WithBaseURL(srv.URL+"/v1/"), WithModel("judge-1"), WithStructuredVerdicts(true))
	reply, err := c.Complete(context.Background(), ChatRequest{
		Messages:   []ChatMessage{{Role: "system", Content: "be terse"}, {Role: "user", Content: "Is it alive?"}},
		SchemaName: "verdict",
		Schema:     map[string]any{"type": "object"},
	})
	require.NoError(t, err)

	assert.Equal(t, "No", reply)
	assert.Equal(t, "judge-1", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Is it alive?", got.Messages[1].Content)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_schema", got.ResponseFormat.Type)
	assert.Equal(t, "verdict", got.ResponseFormat.JSONSchema.Name)
	assert.True(t, got.ResponseFormat.JSONSchema.Strict)
}

func TestJudgeOmitsSchemaWhenUnstructured(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	temp := 0.7
	c := NewJudgeClient("k", WithBaseURL(srv.URL), WithStructuredVerdicts(false))
	_, err := c.Complete(context.Background(), ChatRequest{
		Messages:    []ChatMessage{{Role: "user", Content: "hi"}},
		Temperature: &temp,
		Schema:      map[string]any{"type": "object"},
	})
	require.NoError(t, err)

	assert.NotContains(t, raw, "response_format")
	assert.Equal(t, 0.7, raw["temperature"])
	assert.False(t, c.Structured())
}

func TestJudgeErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, false},
		{"rate limited", http.StatusTooManyRequests, `{}`, true},
		{"no choices", http.StatusOK, `{"choices":[]}`, false},
		{"malformed", http.StatusOK, `not json`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewJudgeClient("k", WithBaseURL(srv.URL)).Complete(context.Background(), ChatRequest{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrExternalService))
			assert.Equal(t, tt.retryable, domain.Retryable(err))
		})
	}
}

func TestJudgeTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewJudgeClient("k", WithBaseURL(srv.URL)).Complete(ctx, ChatRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExternalService))
	assert.True(t, domain.Retryable(err))
}
