package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message is one chat turn in a generation request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized generation request built by the prompt
// builder: persona, bounded context, the new user turn, and a
// machine-readable hint block describing detected risk and intents.
type Request struct {
	SessionKey string    `json:"session_key"`
	TurnID     string    `json:"turn_id"`
	System     string    `json:"system"`
	Messages   []Message `json:"messages"`
	Hint       string    `json:"hint,omitempty"`
}

// ErrUnavailable wraps any transport failure or timeout talking to the
// generation backend. Callers degrade rather than fail the turn.
var ErrUnavailable = errors.New("generation backend unavailable")

// Client generates a reply for a request. Implementations are
// stateless from the caller's perspective and honor ctx cancellation.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config controls client construction.
type Config struct {
	Mode    string
	HTTPURL string
	Model   string
}

// NewClient builds a generation client by mode. "auto" prefers the
// HTTP backend when a URL is configured and falls back to the mock.
func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPClient(cfg.HTTPURL, cfg.Model), nil
		}
		return NewMockClient(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("brain HTTP url is required for http mode")
		}
		return NewHTTPClient(cfg.HTTPURL, cfg.Model), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported brain mode %q", cfg.Mode)
	}
}
