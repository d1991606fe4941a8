package inference_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-retail-voice/pkg/inference"
)

func TestClientChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Equal(t, float64(0), body["temperature"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

		_, _ = io.WriteString(w, `{
			"model": "gpt-4o-mini",
			"choices": [{"message": {"role": "assistant", "content": "{\"intent\":\"categories\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`)
	}))
	defer srv.Close()

	c, err := inference.NewClient(inference.WithBaseURL(srv.URL+"/"), inference.WithAPIKey("sk-test"))
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Chat(context.Background(), &inference.ChatRequest{
		Messages: []inference.Message{
			inference.NewSystemMessage("classify"),
			inference.NewUserMessage("what categories do you have"),
		},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"categories"}`, resp.Message.Content)
	assert.Equal(t, inference.RoleAssistant, resp.Message.Role)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
	assert.Equal(t, "openai", c.Name())
}

func TestClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`)
	}))
	defer srv.Close()

	c, err := inference.NewClient(inference.WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), &inference.ChatRequest{Messages: []inference.Message{inference.NewUserMessage("hi")}})
	var apiErr *inference.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "rate_limit_exceeded", apiErr.Code)
	assert.Equal(t, 1, calls, "no retries")

	assert.Error(t, c.Health(context.Background()))
}

func TestClientNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices": []}`)
	}))
	defer srv.Close()

	c, err := inference.NewClient(inference.WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), &inference.ChatRequest{})
	assert.ErrorIs(t, err, inference.ErrEmptyResponse)
}

func TestAnthropicChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		system := body["system"].([]any)[0].(map[string]any)["text"].(string)
		assert.Contains(t, system, "classify")
		assert.Contains(t, system, "JSON object")
		assert.Len(t, body["messages"], 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "{\"intent\":\"general\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 6}
		}`)
	}))
	defer srv.Close()

	a, err := inference.NewAnthropic(inference.WithAPIKey("ak-test"), inference.WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	resp, err := a.Chat(context.Background(), &inference.ChatRequest{
		Messages: []inference.Message{
			inference.NewSystemMessage("classify"),
			inference.NewUserMessage("hello"),
		},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"general"}`, resp.Message.Content)
	assert.Equal(t, 26, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)
}

func TestGeminiChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-2.0-flash:generateContent")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotNil(t, body["systemInstruction"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"intent\":\"stock\"}"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 9, "candidatesTokenCount": 3, "totalTokenCount": 12}
		}`)
	}))
	defer srv.Close()

	g, err := inference.NewGemini(context.Background(), inference.WithAPIKey("gk"), inference.WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	resp, err := g.Chat(context.Background(), &inference.ChatRequest{
		Messages: []inference.Message{
			inference.NewSystemMessage("classify"),
			inference.NewUserMessage("is 12345 in stock"),
		},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"stock"}`, resp.Message.Content)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestProviderKeysRequired(t *testing.T) {
	_, err := inference.NewAnthropic()
	assert.ErrorIs(t, err, inference.ErrNoAPIKey)

	_, err = inference.NewGemini(context.Background())
	assert.ErrorIs(t, err, inference.ErrNoAPIKey)
}
