package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
)

// Client talks to qdrant over its HTTP API. Every user gets an isolated
// collection named "<prefix>_<user>"; cross-user retrieval is impossible by
// construction.
type Client struct {
	baseURL          string
	collectionPrefix string
	httpClient       *http.Client

	ensureMu sync.Mutex
	ensured  map[string]int
}

func New(baseURL, collectionPrefix string) *Client {
	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		collectionPrefix: collectionPrefix,
		httpClient:       &http.Client{Timeout: 60 * time.Second},
		ensured:          make(map[string]int),
	}
}

func (c *Client) IngestUnits(ctx context.Context, userID string, units []domain.RetrievalUnit, vectors [][]float32) error {
	if len(units) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(units) != len(vectors) {
		return fmt.Errorf("units/vectors mismatch")
	}

	collection := c.collectionFor(userID)
	if err := c.ensureCollection(ctx, collection, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(units))
	for i, unit := range units {
		tags := make([]string, 0, len(unit.Tags))
		for _, tag := range unit.Tags {
			tags = append(tags, tag.String())
		}
		points = append(points, point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: map[string]any{
				"file_name":   unit.FileName,
				"page":        unit.Page,
				"chunk_index": unit.ChunkIndex,
				"text":        unit.Text,
				"tags":        tags,
			},
		})
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status: %s", resp.Status)
	}
	return nil
}

func (c *Client) Retrieve(
	ctx context.Context,
	userID string,
	queryVector []float32,
	limit int,
	fileNames []string,
) ([]domain.RetrievedUnit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if len(fileNames) > 0 {
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key": "file_name",
					"match": map[string]any{
						"any": fileNames,
					},
				},
			},
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collectionFor(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	// A user who never ingested has no collection yet; that is an empty
	// partition, not a failure.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant search status: %s", resp.Status)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.RetrievedUnit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedUnit{
			FileName: getStringPayload(r.Payload, "file_name"),
			Page:     getIntPayload(r.Payload, "page"),
			Text:     getStringPayload(r.Payload, "text"),
			Score:    r.Score,
		})
	}
	return out, nil
}

func (c *Client) collectionFor(userID string) string {
	return c.collectionPrefix + "_" + sanitizeCollectionName(userID)
}

func (c *Client) ensureCollection(ctx context.Context, collection string, vectorSize int) error {
	c.ensureMu.Lock()
	if size, ok := c.ensured[collection]; ok && size == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 if already exists (depends on version/config).
	if resp.StatusCode == http.StatusConflict {
		c.markEnsured(collection, vectorSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}
	c.markEnsured(collection, vectorSize)
	return nil
}

func (c *Client) markEnsured(collection string, vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensured[collection] = vectorSize
}

func sanitizeCollectionName(userID string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, userID)
	if mapped == "" {
		return "anonymous"
	}
	return mapped
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int(f)
}
