package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openaiDefaultModel = "gpt-4o"
	groqDefaultModel   = "llama-3.3-70b-versatile"
	groqBaseURL        = "https://api.groq.com/openai/v1"
)

type openaiCompleter struct {
	client   *openai.Client
	provider string
	model    string
}

// newOpenAI also serves Groq, which speaks the same chat-completions wire
// protocol behind a different base URL.
func newOpenAI(provider, model string) (*openaiCompleter, error) {
	model = strings.Trim(strings.TrimSpace(model), "\"'")

	var cfg openai.ClientConfig
	switch provider {
	case "groq":
		key := strings.TrimSpace(os.Getenv("GROQ_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("missing GROQ_API_KEY")
		}
		cfg = openai.DefaultConfig(key)
		cfg.BaseURL = groqBaseURL
		if model == "" {
			model = strings.TrimSpace(os.Getenv("GROQ_MODEL"))
		}
		if model == "" {
			model = groqDefaultModel
		}
	default:
		key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("missing OPENAI_API_KEY")
		}
		cfg = openai.DefaultConfig(key)
		if model == "" {
			model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
		}
		if model == "" {
			model = openaiDefaultModel
		}
	}
	return &openaiCompleter{
		client:   openai.NewClientWithConfig(cfg),
		provider: provider,
		model:    model,
	}, nil
}

func (c *openaiCompleter) Name() string { return c.provider + "/" + c.model }

func (c *openaiCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response", c.provider)
	}
	return resp.Choices[0].Message.Content, nil
}
