package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const (
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
)

// geminiAdapter implements LLMAdapter for Google Gemini via the REST API.
type geminiAdapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGemini creates a Gemini adapter. If apiKey is empty, GEMINI_API_KEY is used.
func NewGemini(apiKey, baseURL string) LLMAdapter {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &geminiAdapter{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (g *geminiAdapter) Info() ModelInfo {
	return ModelInfo{
		Name:             defaultGeminiModel,
		Provider:         ProviderGemini,
		MaxContextWindow: 1000000,
	}
}

type geminiGenerateRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (g *geminiAdapter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model, maxTokens := defaults(req, defaultGeminiModel)

	genReq := geminiGenerateRequest{
		GenerationConfig: &geminiGenerationConfig{
			MaxOutputTokens: maxTokens,
			Temperature:     req.Temperature,
		},
	}
	if req.SystemPrompt != "" {
		genReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		genReq.Contents = append(genReq.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	body, err := json.Marshal(genReq)
	if err != nil {
		return "", apiError(ProviderGemini, 0, fmt.Errorf("marshal: %w", err))
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, model)
	return g.doGenerate(ctx, url, body)
}

// doGenerate makes a generateContent call and returns the concatenated text.
func (g *geminiAdapter) doGenerate(ctx context.Context, url string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", apiError(ProviderGemini, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", apiError(ProviderGemini, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", apiError(ProviderGemini, resp.StatusCode, errors.New(strings.TrimSpace(string(respBody))))
	}

	var genResp geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", apiError(ProviderGemini, 0, fmt.Errorf("decode: %w", err))
	}
	if genResp.Error != nil {
		return "", apiError(ProviderGemini, genResp.Error.Code, errors.New(genResp.Error.Message))
	}

	var parts []string
	for _, cand := range genResp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				parts = append(parts, part.Text)
			}
		}
	}
	return strings.Join(parts, ""), nil
}
