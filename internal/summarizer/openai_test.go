package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) (*OpenAIInvoker, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	inv, err := NewOpenAIInvoker(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gpt-4o-mini",
	})
	require.NoError(t, err)

	return inv, &hits
}

func TestNewOpenAIInvokerRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIInvoker(OpenAIConfig{APIKey: "  "})
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestOpenAIInvokerSendsChatCompletion(t *testing.T) {
	inv, _ := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4.1-mini", body["model"])
		assert.InDelta(t, 0.3, body["temperature"], 1e-9)
		assert.InDelta(t, 150, body["max_completion_tokens"], 1e-9)

		messages, ok := body["messages"].([]any)
		assert.True(t, ok)
		assert.Len(t, messages, 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4.1-mini-2025-04-14",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"logprobs": null,
				"message": {"role": "assistant", "content": "  A short summary.  ", "refusal": null}
			}]
		}`))
	})

	resp, err := inv.Invoke(context.Background(), Request{
		Step:            StepStuff,
		Prompt:          "Summarize this",
		Model:           "gpt-4.1-mini",
		Temperature:     0.3,
		MaxOutputTokens: 150,
	})
	require.NoError(t, err)

	assert.Equal(t, "A short summary.", resp.Text)
	assert.Equal(t, "gpt-4.1-mini-2025-04-14", resp.Model)
	assert.Positive(t, resp.Elapsed)
}

func TestOpenAIInvokerClassifiesErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "rejected credential",
			status:  http.StatusUnauthorized,
			body:    `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			wantErr: ErrUpstreamUnavailable,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`,
			wantErr: ErrUpstreamError,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{"error": {"message": "boom", "type": "server_error"}}`,
			wantErr: ErrUpstreamError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, hits := newOpenAITestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := inv.Invoke(context.Background(), Request{Prompt: "hello", MaxOutputTokens: 10})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int32(1), hits.Load(), "the invoker must not retry")
		})
	}
}

func TestOpenAIInvokerRejectsEmptyContent(t *testing.T) {
	inv, _ := newOpenAITestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-2",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "length", "logprobs": null,
				"message": {"role": "assistant", "content": "", "refusal": null}}]
		}`))
	})

	_, err := inv.Invoke(context.Background(), Request{Prompt: "hello"})
	require.ErrorIs(t, err, ErrUpstreamError)
	assert.Contains(t, err.Error(), "length")
}

func TestOpenAIInvokerRejectsEmptyPrompt(t *testing.T) {
	inv, hits := newOpenAITestServer(t, func(http.ResponseWriter, *http.Request) {})

	_, err := inv.Invoke(context.Background(), Request{Prompt: " "})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, hits.Load())
}
