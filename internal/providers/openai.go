package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o-mini"
	openAISecretKey      = "openai_api_key"
)

// OpenAIAdapter implements the Adapter interface for the OpenAI chat API.
type OpenAIAdapter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(cfg AdapterConfig) *OpenAIAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
	}
	return &OpenAIAdapter{
		baseURL: baseURL,
		model:   model,
		client:  cfg.client(),
	}
}

// ID returns the provider identity
func (a *OpenAIAdapter) ID() ProviderID {
	return OpenAI
}

// DisplayName returns the human-readable provider name
func (a *OpenAIAdapter) DisplayName() string {
	return "ChatGPT"
}

// SecretKey returns the secret store key for the OpenAI credential
func (a *OpenAIAdapter) SecretKey() string {
	return openAISecretKey
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a single chat completion request and extracts the reply text
// from choices[0].message.content.
func (a *OpenAIAdapter) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	body, err := json.Marshal(openAIRequest{
		Model:       a.model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens:   1024,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := a.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", transportError(OpenAI, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(OpenAI, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", upstreamError(OpenAI, resp.StatusCode, respBody)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", malformedError(OpenAI)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", malformedError(OpenAI)
	}
	return parsed.Choices[0].Message.Content, nil
}
