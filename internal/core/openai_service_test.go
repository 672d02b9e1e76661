package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/campus-knowledge/internal/store"
)

func newOpenAITestService(t *testing.T, handler http.HandlerFunc) *OpenAIService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewOpenAIServiceWithConfig(cfg, "test-model")
}

func TestOpenAIStreamAnswer(t *testing.T) {
	requests := make(chan map[string]any, 1)
	svc := newOpenAITestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		requests <- body

		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"Room ", "", "B12"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var chunks []string
	err := svc.StreamAnswer(context.Background(), AnswerRequest{
		History: []ChatTurn{{Role: store.RoleUser, Content: "hi"}, {Role: store.RoleMachine, Content: "hello"}},
		Prompt:  "Where is the lab?",
	}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Room ", "B12"}, chunks)

	body := <-requests
	assert.Equal(t, "test-model", body["model"])
	assert.Equal(t, true, body["stream"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 4)
	roles := make([]string, 0, len(messages))
	for _, m := range messages {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
}

func TestOpenAICompleteJSON(t *testing.T) {
	requests := make(chan map[string]any, 1)
	svc := newOpenAITestService(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		requests <- body

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"2","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"classification\":{\"category\":\"Procedural\"}}"},"finish_reason":"stop"}]}`)
	})

	raw, err := svc.CompleteJSON(context.Background(), "classify", "how do I apply?")
	require.NoError(t, err)
	category, err := ParseClassification(raw)
	require.NoError(t, err)
	assert.Equal(t, CategoryProcedural, category)

	body := <-requests
	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAIStreamAnswerServerError(t *testing.T) {
	svc := newOpenAITestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	err := svc.StreamAnswer(context.Background(), AnswerRequest{Prompt: "q"}, func(string) error { return nil })
	assert.Error(t, err)
}
