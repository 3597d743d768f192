package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockClient provides deterministic local replies when no real
// generation backend is configured.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return buildMockReply(req), nil
}

func buildMockReply(req Request) string {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return "I'm here whenever you're ready to train."
	}
	if req.Hint != "" {
		return fmt.Sprintf("Coach here. You said: %s. Let's take it step by step and keep form safe.", last)
	}
	return fmt.Sprintf("Coach here. You said: %s.", last)
}
