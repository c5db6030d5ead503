package adapter

import (
	"context"
	"errors"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4-turbo-preview"

// openaiAdapter implements LLMAdapter for OpenAI.
type openaiAdapter struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI adapter. If apiKey is empty, OPENAI_API_KEY is
// used. An empty baseURL keeps the library default.
func NewOpenAI(apiKey, baseURL string) LLMAdapter {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openaiAdapter{
		client: openai.NewClientWithConfig(cfg),
	}
}

func (o *openaiAdapter) Info() ModelInfo {
	return ModelInfo{
		Name:             defaultOpenAIModel,
		Provider:         ProviderOpenAI,
		MaxContextWindow: 128000,
	}
}

func (o *openaiAdapter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model, maxTokens := defaults(req, defaultOpenAIModel)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", apiError(ProviderOpenAI, openaiStatus(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", apiError(ProviderOpenAI, 0, errors.New("response has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func openaiStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
