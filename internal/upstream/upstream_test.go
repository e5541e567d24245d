package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cchalm/tsundere-chat/internal/chat"
)

var testPrompt = chat.Prompt{
	SystemInstruction: "be terse",
	History: []chat.NormalizedTurn{
		{Role: chat.UpstreamUser, Parts: []string{"hi"}},
		{Role: chat.UpstreamModel, Parts: []string{"hello"}},
	},
	Message: "how are you?",
}

// fakeUpstream serves a canned JSON response and captures the decoded request body
func fakeUpstream(t *testing.T, status int, response string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		captured = map[string]any{}
		assert.NoError(t, json.Unmarshal(b, &captured))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderAnthropic})
	require.Error(t, err)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "mystery", APIKey: "k"})
	require.ErrorContains(t, err, "unknown provider")
}

func TestNew_SelectsProvider(t *testing.T) {
	for _, provider := range []string{ProviderGemini, ProviderAnthropic, ProviderOpenAI} {
		gen, err := New(context.Background(), Config{Provider: provider, APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, provider, gen.Name())
	}
}

func TestAnthropicGenerator_Generate(t *testing.T) {
	srv, captured := fakeUpstream(t, http.StatusOK, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-test",
		"content": [{"type": "text", "text": "fine, "}, {"type": "text", "text": "thanks"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 3}
	}`)

	gen := NewAnthropicGenerator(Config{APIKey: "k", Model: "claude-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	reply, err := gen.Generate(context.Background(), testPrompt)

	require.NoError(t, err)
	assert.Equal(t, "fine, thanks", reply)

	messages, ok := (*captured)["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 3)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", messages[1].(map[string]any)["role"])
	assert.Equal(t, "user", messages[2].(map[string]any)["role"])
	assert.NotNil(t, (*captured)["system"])
}

func TestAnthropicGenerator_APIError(t *testing.T) {
	srv, _ := fakeUpstream(t, http.StatusBadRequest, `{
		"type": "error",
		"error": {"type": "invalid_request_error", "message": "bad request"}
	}`)

	gen := NewAnthropicGenerator(Config{APIKey: "k", Model: "claude-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := gen.Generate(context.Background(), testPrompt)

	var upstreamErr *chat.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusBadRequest, upstreamErr.StatusCode)
	assert.Equal(t, ProviderAnthropic, upstreamErr.Provider)
}

func TestAnthropicGenerator_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gen := NewAnthropicGenerator(Config{APIKey: "k", Model: "claude-test", BaseURL: url, HTTPClient: http.DefaultClient})
	_, err := gen.Generate(context.Background(), testPrompt)

	var transportErr *chat.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	srv, captured := fakeUpstream(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-test",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "fine"}, "finish_reason": "stop"}]
	}`)

	gen := NewOpenAIGenerator(Config{APIKey: "k", Model: "gpt-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	reply, err := gen.Generate(context.Background(), testPrompt)

	require.NoError(t, err)
	assert.Equal(t, "fine", reply)

	messages, ok := (*captured)["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 4)
	roles := []string{}
	for _, m := range messages {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
}

func TestOpenAIGenerator_NoChoices(t *testing.T) {
	srv, _ := fakeUpstream(t, http.StatusOK, `{"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-test", "choices": []}`)

	gen := NewOpenAIGenerator(Config{APIKey: "k", Model: "gpt-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := gen.Generate(context.Background(), testPrompt)

	var upstreamErr *chat.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
}

func TestGeminiGenerator_Generate(t *testing.T) {
	srv, captured := fakeUpstream(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "fine"}]}}]
	}`)

	gen, err := NewGeminiGenerator(context.Background(), Config{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	reply, err := gen.Generate(context.Background(), testPrompt)

	require.NoError(t, err)
	assert.Equal(t, "fine", reply)

	contents, ok := (*captured)["contents"].([]any)
	require.True(t, ok)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].(map[string]any)["role"])
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])
	assert.Equal(t, "user", contents[2].(map[string]any)["role"])
	assert.NotNil(t, (*captured)["systemInstruction"])
}

func TestGeminiGenerator_APIError(t *testing.T) {
	srv, _ := fakeUpstream(t, http.StatusBadRequest, `{
		"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}
	}`)

	gen, err := NewGeminiGenerator(context.Background(), Config{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), testPrompt)

	var upstreamErr *chat.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, ProviderGemini, upstreamErr.Provider)
	assert.Equal(t, http.StatusBadRequest, upstreamErr.StatusCode)
}

func TestGeminiContents(t *testing.T) {
	contents := geminiContents(chat.Prompt{Message: "hi"})

	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].Role)
	require.Len(t, contents[0].Parts, 1)
	assert.Equal(t, "hi", contents[0].Parts[0].Text)
}
