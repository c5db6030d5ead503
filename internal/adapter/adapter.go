// Package adapter provides a unified interface for the chat model providers.
package adapter

import (
	"context"
	"fmt"
)

// Provider name constants.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest holds the parameters for a completion call. Messages are
// sent in order; the last one is the new user message.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Model        string
	MaxTokens    int
	Temperature  float64
}

// ModelInfo describes the default model of an adapter.
type ModelInfo struct {
	Name             string
	Provider         string
	MaxContextWindow int
}

// LLMAdapter is the common interface all provider adapters implement.
type LLMAdapter interface {
	// Complete sends the conversation and returns the full response text.
	// Failures are returned as *APIError.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Info returns metadata about the adapter/model.
	Info() ModelInfo
}

// Options configures New.
type Options struct {
	APIKey string
	// BaseURL overrides the provider endpoint (proxies, tests).
	BaseURL string
	// OllamaHost is the base URL for the Ollama server.
	OllamaHost string
}

// New constructs the LLMAdapter for the named provider.
func New(provider string, opts Options) (LLMAdapter, error) {
	switch provider {
	case ProviderClaude:
		return NewClaude(opts.APIKey, opts.BaseURL), nil
	case ProviderOpenAI:
		return NewOpenAI(opts.APIKey, opts.BaseURL), nil
	case ProviderGemini:
		return NewGemini(opts.APIKey, opts.BaseURL), nil
	case ProviderOllama:
		host := opts.OllamaHost
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllama(host), nil
	default:
		return nil, fmt.Errorf("adapter: unknown provider %q; valid providers: claude, openai, gemini, ollama", provider)
	}
}

// NeedsAPIKey reports whether provider requires an API key.
func NeedsAPIKey(provider string) bool {
	return provider != ProviderOllama
}

// defaults fills the zero-valued request fields.
func defaults(req CompletionRequest, model string) (string, int) {
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return model, maxTokens
}
