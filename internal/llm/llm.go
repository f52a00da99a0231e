// Package llm talks to an OpenAI-compatible chat completions endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bananya-ml/arxiv-feed/internal/apperr"
	"github.com/bananya-ml/arxiv-feed/internal/helpers"
)

// Generator produces a completion for a system instruction and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	Retry     helpers.RetryPolicy
}

type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	retry   helpers.RetryPolicy
}

func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("llm: base url required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Retry.MaxTries == 0 {
		cfg.Retry = helpers.DefaultRetryPolicy()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  key,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		retry:   cfg.Retry,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	var resp chatResponse
	err := helpers.PostJSON(ctx, c.client, c.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.apiKey},
		chatRequest{Model: c.model, Messages: messages}, &resp, c.retry)
	if err != nil {
		if helpers.IsRetryable(err) {
			return "", apperr.Transient("llm", err)
		}
		return "", apperr.Fatal("llm", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Fatal("llm", errors.New("no choices in response"))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", apperr.Fatal("llm", errors.New("empty completion"))
	}
	return text, nil
}

// Unavailable is the Generator used when no model is configured.
type Unavailable struct {
	Reason error
}

func (u Unavailable) Generate(context.Context, string, string) (string, error) {
	return "", apperr.Fatal("llm", fmt.Errorf("generator unavailable: %w", u.Reason))
}
