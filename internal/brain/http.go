package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient talks to an Ollama-compatible chat endpoint.
type HTTPClient struct {
	url    string
	model  string
	client *http.Client
}

func NewHTTPClient(url, model string) *HTTPClient {
	if strings.TrimSpace(model) == "" {
		model = "gemma"
	}
	return &HTTPClient{
		url:   strings.TrimRight(strings.TrimSpace(url), "/"),
		model: model,
		client: &http.Client{
			// Per-turn deadlines come from the caller's context; this is
			// a hard ceiling against a hung backend.
			Timeout: 60 * time.Second,
		},
	}
}

type chatPayload struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Text    string  `json:"text"`
}

func (c *HTTPClient) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]Message, 0, len(req.Messages)+2)
	system := req.System
	if req.Hint != "" {
		system = system + "\n\n" + req.Hint
	}
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, req.Messages...)

	payload, err := json.Marshal(chatPayload{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options: map[string]any{
			"temperature": 0.7,
			"num_predict": 500,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, res.StatusCode, string(body))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var obj chatResponse
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if text := strings.TrimSpace(obj.Message.Content); text != "" {
		return text, nil
	}
	return strings.TrimSpace(obj.Text), nil
}
