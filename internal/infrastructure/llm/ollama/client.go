package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
	"github.com/ValentinOzeel/RAGalactic/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, chatModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Embedder adapts /api/embed for chunk and query vectors.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.execute(ctx, "embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// ChatModel adapts /api/chat, in both buffered and streaming form.
type ChatModel struct {
	client *Client
}

func NewChatModel(client *Client) *ChatModel {
	return &ChatModel{client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m *ChatModel) Complete(ctx context.Context, systemPrompt string, history []domain.Turn, userText string) (string, error) {
	request := map[string]any{
		"model":    m.client.chatModel,
		"messages": buildMessages(systemPrompt, history, userText),
		"stream":   false,
	}

	var response struct {
		Message chatMessage `json:"message"`
	}
	err := m.client.execute(ctx, "chat", func(ctx context.Context) error {
		return m.client.postJSON(ctx, "/api/chat", request, &response, "chat")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Message.Content), nil
}

// CompleteStream drains the NDJSON stream, forwarding each fragment to emit.
// The stream is not retried: fragments already delivered cannot be taken back.
func (m *ChatModel) CompleteStream(
	ctx context.Context,
	systemPrompt string,
	history []domain.Turn,
	userText string,
	emit func(fragment string) error,
) (string, error) {
	request := map[string]any{
		"model":    m.client.chatModel,
		"messages": buildMessages(systemPrompt, history, userText),
		"stream":   true,
	}

	body, err := m.client.postStream(ctx, "/api/chat", request, "chat stream")
	if err != nil {
		return "", err
	}
	defer body.Close()

	var assembled strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk struct {
			Message chatMessage `json:"message"`
			Done    bool        `json:"done"`
			Error   string      `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return "", fmt.Errorf("decode chat stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama chat stream: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			if err := emit(chunk.Message.Content); err != nil {
				return "", fmt.Errorf("emit chat fragment: %w", err)
			}
			assembled.WriteString(chunk.Message.Content)
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read chat stream: %w", err)
	}
	return strings.TrimSpace(assembled.String()), nil
}

func buildMessages(systemPrompt string, history []domain.Turn, userText string) []chatMessage {
	messages := make([]chatMessage, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, turn := range history {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Text})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})
	return messages
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyOllamaError)
}
