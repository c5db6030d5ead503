package adapter

import (
	"context"
	"errors"
	"os"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

const defaultClaudeModel = "claude-sonnet-4-6"

// claudeAdapter implements LLMAdapter for Anthropic Claude.
type claudeAdapter struct {
	client *anthropic.Client
}

// NewClaude creates a Claude adapter. If apiKey is empty, ANTHROPIC_API_KEY is used.
func NewClaude(apiKey, baseURL string) LLMAdapter {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &claudeAdapter{
		client: anthropic.NewClient(apiKey, opts...),
	}
}

func (c *claudeAdapter) Info() ModelInfo {
	return ModelInfo{
		Name:             defaultClaudeModel,
		Provider:         ProviderClaude,
		MaxContextWindow: 200000,
	}
}

func (c *claudeAdapter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model, maxTokens := defaults(req, defaultClaudeModel)
	temp := float32(req.Temperature)

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		Messages:    claudeMessages(req.Messages),
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Temperature: &temp,
	})
	if err != nil {
		return "", apiError(ProviderClaude, 0, err)
	}

	var b strings.Builder
	for _, part := range resp.Content {
		if part.Type == anthropic.MessagesContentTypeText {
			b.WriteString(part.GetText())
		}
	}
	if b.Len() == 0 {
		return "", apiError(ProviderClaude, 0, errors.New("response has no text content"))
	}
	return b.String(), nil
}

// claudeMessages converts the conversation, folding consecutive turns with
// the same role into one message so roles strictly alternate.
func claudeMessages(msgs []Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(msgs))
	for _, m := range msgs {
		role := anthropic.RoleUser
		if m.Role == RoleAssistant {
			role = anthropic.RoleAssistant
		}
		content := anthropic.NewTextMessageContent(m.Content)
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, content)
			continue
		}
		out = append(out, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{content},
		})
	}
	return out
}
