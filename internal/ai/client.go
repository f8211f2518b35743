// Package ai wraps the chat-completion API behind the one call the bot
// needs: ordered messages in, reply text out.
package ai

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"

	"github.com/newdeveloper1101-crypto/Startup/internal/memory"
)

type Client struct {
	api         openai.Client
	model       openai.ChatModel
	temperature float64
}

func NewClient(api openai.Client, model string, temperature float64) *Client {
	return &Client{
		api:         api,
		model:       openai.ChatModel(model),
		temperature: temperature,
	}
}

// Complete sends the prompt sequence as-is and returns the reply text.
func (c *Client) Complete(ctx context.Context, msgs []memory.PromptMessage, maxTokens int64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:    toParams(msgs),
		Model:       c.model,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(maxTokens),
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}
	return content, nil
}

func toParams(msgs []memory.PromptMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case memory.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case memory.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
