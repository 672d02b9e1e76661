package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"gwi.com/campus-knowledge/internal/store"
)

type geminiRequest struct {
	Path string
	Body map[string]any
}

func newGeminiTestService(t *testing.T, handler http.HandlerFunc) *LLMService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	svc, err := NewLLMService(context.Background(), "test-key", "chat-model", "classifier-model",
		option.WithEndpoint(srv.URL), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func recordGeminiRequest(r *http.Request, requests chan<- geminiRequest) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	requests <- geminiRequest{Path: r.URL.Path, Body: body}
}

func contentRoles(t *testing.T, body map[string]any) []string {
	t.Helper()
	contents, ok := body["contents"].([]any)
	require.True(t, ok, "request has no contents")
	roles := make([]string, 0, len(contents))
	for _, c := range contents {
		role, _ := c.(map[string]any)["role"].(string)
		roles = append(roles, role)
	}
	return roles
}

func TestGeminiStreamAnswer(t *testing.T) {
	requests := make(chan geminiRequest, 1)
	svc := newGeminiTestService(t, func(w http.ResponseWriter, r *http.Request) {
		recordGeminiRequest(r, requests)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[`+
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Room "}]}}]},`+
			`{"candidates":[{"content":{"role":"model","parts":[{"text":""}]}}]},`+
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"B12"}]},"finishReason":"STOP"}]}`+
			`]`)
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

	req := <-requests
	assert.Equal(t, "/v1beta/models/chat-model:streamGenerateContent", req.Path)
	assert.Equal(t, []string{"user", "model", "user"}, contentRoles(t, req.Body))
	instruction, ok := req.Body["systemInstruction"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fmt.Sprint(instruction["parts"]), "campus assistant")
}

func TestGeminiStreamAnswerStopsOnChunkError(t *testing.T) {
	svc := newGeminiTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[`+
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"one"}]}}]},`+
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"two"}]}}]}`+
			`]`)
	})

	errStop := errors.New("listener gone")
	var chunks []string
	err := svc.StreamAnswer(context.Background(), AnswerRequest{Prompt: "q"}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return errStop
	})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, []string{"one"}, chunks)
}

func TestGeminiStreamAnswerRejected(t *testing.T) {
	svc := newGeminiTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":400,"message":"bad prompt","status":"INVALID_ARGUMENT"}}`)
	})

	err := svc.StreamAnswer(context.Background(), AnswerRequest{Prompt: "q"}, func(string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini chat stream failed")
}

func TestGeminiCompleteJSON(t *testing.T) {
	requests := make(chan geminiRequest, 1)
	svc := newGeminiTestService(t, func(w http.ResponseWriter, r *http.Request) {
		recordGeminiRequest(r, requests)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"classification\":{\"category\":\"Procedural\"}}"}]},"finishReason":"STOP"}]}`)
	})

	raw, err := svc.CompleteJSON(context.Background(), "classify", "how do I apply?")
	require.NoError(t, err)
	category, err := ParseClassification(raw)
	require.NoError(t, err)
	assert.Equal(t, CategoryProcedural, category)

	req := <-requests
	assert.Equal(t, "/v1beta/models/classifier-model:generateContent", req.Path)
	assert.Equal(t, []string{"user"}, contentRoles(t, req.Body))
	cfg, ok := req.Body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/json", cfg["responseMimeType"])
}

func TestGeminiCompleteJSONEmpty(t *testing.T) {
	svc := newGeminiTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"STOP"}]}`)
	})

	_, err := svc.CompleteJSON(context.Background(), "classify", "how do I apply?")
	assert.Error(t, err)
}

func TestGeminiGenerateTitle(t *testing.T) {
	requests := make(chan geminiRequest, 1)
	svc := newGeminiTestService(t, func(w http.ResponseWriter, r *http.Request) {
		recordGeminiRequest(r, requests)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"\"Library Opening Hours\"\n"}]},"finishReason":"STOP"}]}`)
	})

	title, err := svc.GenerateTitle(context.Background(), "When does the library open?")
	require.NoError(t, err)
	assert.Equal(t, "Library Opening Hours", title)

	req := <-requests
	assert.Equal(t, "/v1beta/models/"+defaultTitleModelName+":generateContent", req.Path)
}
