package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func contentChunk(content string) string {
	return fmt.Sprintf(`{"id":"1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, content)
}

func testHandler(baseURL string) *Handler {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewHandler(&Config{
		APIKey:      "test",
		BaseURL:     baseURL,
		Model:       "test",
		Temperature: 0.7,
		MaxTokens:   100,
		Timeout:     5 * time.Second,
	}, "You are a phone assistant.", logger)
}

func TestRespondCollectsStream(t *testing.T) {
	srv := sseServer(t, []string{
		contentChunk("Hello "),
		contentChunk("there."),
		`{"id":"1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	})
	defer srv.Close()

	h := testHandler(srv.URL)
	reply, err := h.Respond(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", reply.Text)
	assert.False(t, reply.EndCall)

	// conversation history: system + user + assistant
	msgs := h.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, openai.ChatMessageRoleAssistant, msgs[2].Role)
	assert.Equal(t, "Hello there.", msgs[2].Content)
}

func TestRespondHangupTool(t *testing.T) {
	srv := sseServer(t, []string{
		contentChunk("Goodbye!"),
		`{"id":"1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"hangup","arguments":"{\"reason\":\"caller said bye\"}"}}]},"finish_reason":null}]}`,
		`{"id":"1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	})
	defer srv.Close()

	h := testHandler(srv.URL)
	reply, err := h.Respond(context.Background(), "bye now")
	require.NoError(t, err)
	assert.True(t, reply.EndCall)
	assert.Equal(t, "Goodbye!", reply.Text)
	assert.Equal(t, "caller said bye", reply.Reason)
}

func TestRespondErrorRollsBackUserTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := testHandler(srv.URL)
	_, err := h.Respond(context.Background(), "hi")
	require.Error(t, err)

	// retry must not see a duplicated user message
	msgs := h.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
}

func TestResetKeepsSystemPrompt(t *testing.T) {
	srv := sseServer(t, []string{contentChunk("ok")})
	defer srv.Close()

	h := testHandler(srv.URL)
	_, err := h.Respond(context.Background(), "hi")
	require.NoError(t, err)

	h.Reset()
	msgs := h.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "You are a phone assistant.", msgs[0].Content)
}

func TestTranscript(t *testing.T) {
	srv := sseServer(t, []string{contentChunk("Sunny today.")})
	defer srv.Close()

	h := testHandler(srv.URL)
	_, err := h.Respond(context.Background(), "what's the weather")
	require.NoError(t, err)

	assert.Equal(t, "Caller: what's the weather\nAssistant: Sunny today.", h.Transcript())
}
