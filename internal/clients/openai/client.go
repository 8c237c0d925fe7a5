package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"leadgen-server/internal/observability"

	openai "github.com/sashabaranov/go-openai"
)

var ErrEmptyCompletion = errors.New("empty completion from model")

// Client wraps the OpenAI chat completion API for the extraction and
// summarization steps of the pipeline.
type Client struct {
	client *openai.Client
	model  string
	logger *observability.Logger
}

func NewClient(apiKey string, logger *observability.Logger) *Client {
	return &Client{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
		logger: logger,
	}
}

// Complete sends a system and user message pair and returns the assistant
// reply as plain text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
	})
	if err != nil {
		c.logger.InfoWithError(ctx, "chat completion failed", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteJSON sends a prompt pair and unmarshals the reply into out. The
// model is asked for a JSON object response; stray code fences are stripped
// before decoding.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, out any) error {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.logger.InfoWithError(ctx, "chat completion failed", err)
		return fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ErrEmptyCompletion
	}

	content := stripCodeFence(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		c.logger.InfoWithError(ctx, "failed to decode model reply", err)
		return fmt.Errorf("failed to decode model reply: %w", err)
	}
	return nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
