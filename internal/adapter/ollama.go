package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOllamaModel = "llama3.2"

// ollamaAdapter implements LLMAdapter for a local Ollama instance.
type ollamaAdapter struct {
	host   string
	client *http.Client
}

// NewOllama creates an Ollama adapter.
func NewOllama(host string) LLMAdapter {
	return &ollamaAdapter{
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{},
	}
}

func (o *ollamaAdapter) Info() ModelInfo {
	return ModelInfo{
		Name:             defaultOllamaModel,
		Provider:         ProviderOllama,
		MaxContextWindow: 32768,
	}
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

func (o *ollamaAdapter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model, maxTokens := defaults(req, defaultOllamaModel)

	messages := make([]ollamaChatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, ollamaChatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": maxTokens,
		},
	})
	if err != nil {
		return "", apiError(ProviderOllama, 0, fmt.Errorf("marshal: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", apiError(ProviderOllama, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", apiError(ProviderOllama, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", apiError(ProviderOllama, resp.StatusCode, errors.New(strings.TrimSpace(string(respBody))))
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apiError(ProviderOllama, 0, fmt.Errorf("decode: %w", err))
	}
	if out.Error != "" {
		return "", apiError(ProviderOllama, 0, errors.New(out.Error))
	}
	return out.Message.Content, nil
}
