package qdrant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
)

func sampleUnits() []domain.RetrievalUnit {
	return []domain.RetrievalUnit{
		{FileName: "a.pdf", Page: 1, ChunkIndex: 0, Text: "first", Tags: []domain.Tag{{Name: "topic", Value: "x"}}},
		{FileName: "a.pdf", Page: 2, ChunkIndex: 1, Text: "second"},
	}
}

func TestIngestUnitsEnsuresPerUserCollectionOnce(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs_user-1":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs_user-1/points":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs")
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	if err := client.IngestUnits(context.Background(), "user-1", sampleUnits(), vectors); err != nil {
		t.Fatalf("first IngestUnits() error = %v", err)
	}
	if err := client.IngestUnits(context.Background(), "user-1", sampleUnits(), vectors); err != nil {
		t.Fatalf("second IngestUnits() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
}

func TestIngestUnitsWritesUnitPayload(t *testing.T) {
	var upsertBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs_user-1":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs_user-1/points":
			upsertBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs")
	if err := client.IngestUnits(context.Background(), "user-1", sampleUnits(), [][]float32{{0.1}, {0.2}}); err != nil {
		t.Fatalf("IngestUnits() error = %v", err)
	}

	var parsed struct {
		Points []struct {
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	if err := json.Unmarshal(upsertBody, &parsed); err != nil {
		t.Fatalf("unmarshal upsert body: %v", err)
	}
	if len(parsed.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(parsed.Points))
	}
	payload := parsed.Points[0].Payload
	if payload["file_name"] != "a.pdf" || payload["page"] != float64(1) || payload["text"] != "first" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	tags, ok := payload["tags"].([]any)
	if !ok || len(tags) != 1 || tags[0] != "topic::x" {
		t.Fatalf("unexpected tags payload: %v", payload["tags"])
	}
}

func TestRetrieveAppliesFileNameFilter(t *testing.T) {
	var searchBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/docs_user-1/points/search" {
			_ = json.NewDecoder(r.Body).Decode(&searchBody)
			_, _ = w.Write([]byte(`{"result":[{"score":0.91,"payload":{"file_name":"a.pdf","page":3,"text":"excerpt"}}]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "docs")
	units, err := client.Retrieve(context.Background(), "user-1", []float32{0.1}, 5, []string{"a.pdf", "b.pdf"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected one unit, got %d", len(units))
	}
	unit := units[0]
	if unit.FileName != "a.pdf" || unit.Page != 3 || unit.Text != "excerpt" || unit.Score != 0.91 {
		t.Fatalf("unexpected unit: %+v", unit)
	}

	filter, ok := searchBody["filter"].(map[string]any)
	if !ok {
		t.Fatalf("expected filter in search body, got %v", searchBody)
	}
	raw, _ := json.Marshal(filter)
	if !strings.Contains(string(raw), `"file_name"`) || !strings.Contains(string(raw), `"any"`) {
		t.Fatalf("expected any-of file_name filter, got %s", raw)
	}
}

func TestRetrieveWithoutSelectionOmitsFilter(t *testing.T) {
	var searchBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&searchBody)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs")
	if _, err := client.Retrieve(context.Background(), "user-1", []float32{0.1}, 5, nil); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if _, ok := searchBody["filter"]; ok {
		t.Fatalf("whole-partition retrieval must not send a filter")
	}
}

func TestRetrieveMissingCollectionIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "docs")
	units, err := client.Retrieve(context.Background(), "never-ingested", []float32{0.1}, 5, nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(units) != 0 {
		t.Fatalf("expected empty result, got %v", units)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/collections/") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "docs")
	err := client.IngestUnits(context.Background(), "user-1", sampleUnits()[:1], [][]float32{{0.1, 0.2}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestCollectionNameSanitization(t *testing.T) {
	client := New("http://localhost", "docs")
	cases := map[string]string{
		"User One":  "docs_user_one",
		"alice":     "docs_alice",
		"a.b@c":     "docs_a_b_c",
		"":          "docs_anonymous",
		"MiXeD-42_": "docs_mixed-42_",
	}
	for in, want := range cases {
		if got := client.collectionFor(in); got != want {
			t.Fatalf("collectionFor(%q) = %q, want %q", in, got, want)
		}
	}
}
