package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
)

func TestCompleteSendsSystemHistoryAndUserTurn(t *testing.T) {
	var captured struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
		Stream   bool          `json:"stream"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"  the answer  "},"done":true}`))
	}))
	defer server.Close()

	model := NewChatModel(New(server.URL, "chat-model", "embed-model", nil))
	history := []domain.Turn{
		{Role: domain.RoleUser, Text: "earlier question"},
		{Role: domain.RoleAssistant, Text: "earlier answer"},
	}
	answer, err := model.Complete(context.Background(), "system instructions", history, "new question")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if answer != "the answer" {
		t.Fatalf("Complete() = %q", answer)
	}
	if captured.Model != "chat-model" || captured.Stream {
		t.Fatalf("unexpected request envelope: %+v", captured)
	}
	want := []chatMessage{
		{Role: "system", Content: "system instructions"},
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
		{Role: "user", Content: "new question"},
	}
	if len(captured.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(captured.Messages))
	}
	for i := range want {
		if captured.Messages[i] != want[i] {
			t.Fatalf("message %d = %+v, want %+v", i, captured.Messages[i], want[i])
		}
	}
}

func TestCompleteStreamAssemblesFragments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(
			`{"message":{"role":"assistant","content":"Hello"},"done":false}` + "\n" +
				`{"message":{"role":"assistant","content":" world"},"done":false}` + "\n" +
				`{"message":{"role":"assistant","content":""},"done":true}` + "\n",
		))
	}))
	defer server.Close()

	model := NewChatModel(New(server.URL, "chat-model", "embed-model", nil))
	var fragments []string
	answer, err := model.CompleteStream(context.Background(), "sys", nil, "hi", func(fragment string) error {
		fragments = append(fragments, fragment)
		return nil
	})
	if err != nil {
		t.Fatalf("CompleteStream() error = %v", err)
	}
	if answer != "Hello world" {
		t.Fatalf("assembled answer = %q", answer)
	}
	if len(fragments) != 2 || fragments[0] != "Hello" || fragments[1] != " world" {
		t.Fatalf("unexpected fragments: %v", fragments)
	}
}

func TestCompleteStreamEmitErrorAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(
			`{"message":{"role":"assistant","content":"one"},"done":false}` + "\n" +
				`{"message":{"role":"assistant","content":"two"},"done":true}` + "\n",
		))
	}))
	defer server.Close()

	model := NewChatModel(New(server.URL, "chat-model", "embed-model", nil))
	errSink := errors.New("sink closed")
	_, err := model.CompleteStream(context.Background(), "", nil, "hi", func(string) error {
		return errSink
	})
	if !errors.Is(err, errSink) {
		t.Fatalf("expected sink error to surface, got %v", err)
	}
}

func TestCompleteStreamSurfacesInlineError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model not loaded"}` + "\n"))
	}))
	defer server.Close()

	model := NewChatModel(New(server.URL, "chat-model", "embed-model", nil))
	_, err := model.CompleteStream(context.Background(), "", nil, "hi", func(string) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("expected inline stream error, got %v", err)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "chat-model", "embed-model", nil))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected typed status error, got %v", err)
	}
}

func TestEmbedReturnsVectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "chat-model", "embed-model", nil))
	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || len(vectors[0]) != 2 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}

	query, err := embedder.EmbedQuery(context.Background(), "a")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(query) != 2 {
		t.Fatalf("unexpected query vector: %v", query)
	}
}

func TestClassifyOllamaError(t *testing.T) {
	retryable := classifyOllamaError(&HTTPStatusError{StatusCode: http.StatusBadGateway})
	if !retryable.Retryable || !retryable.RecordFailure {
		t.Fatalf("5xx must be retryable and recorded: %+v", retryable)
	}
	permanent := classifyOllamaError(&HTTPStatusError{StatusCode: http.StatusBadRequest})
	if permanent.Retryable || permanent.RecordFailure {
		t.Fatalf("4xx must not retry or trip the breaker: %+v", permanent)
	}
	cancelled := classifyOllamaError(context.Canceled)
	if cancelled.Retryable || cancelled.RecordFailure {
		t.Fatalf("cancellation must not retry or trip the breaker: %+v", cancelled)
	}
}
