// Package completion wraps the hosted chat-completion API used to draft task suggestions.
package completion

import (
	"context"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"dayplanner/internal/config"
)

// Completer returns the model's reply to a system and user prompt pair.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// OpenAIClient is a Completer backed by the OpenAI chat API, asking for JSON output.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient returns nil when no API key is configured.
func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	if cfg.APIKey == "" {
		return nil
	}
	return newClient(openai.DefaultConfig(cfg.APIKey), cfg.Model)
}

// NewOpenAIClientWithBaseURL points the client at an alternate API root, such as a test server.
func NewOpenAIClientWithBaseURL(cfg config.OpenAIConfig, baseURL string) *OpenAIClient {
	c := openai.DefaultConfig(cfg.APIKey)
	c.BaseURL = baseURL
	return newClient(c, cfg.Model)
}

func newClient(c openai.ClientConfig, model string) *OpenAIClient {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(c), model: model}
}

func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
