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
	claudeDefaultBaseURL = "https://api.anthropic.com/v1"
	claudeDefaultModel   = "claude-3-5-haiku-20241022"
	claudeAPIVersion     = "2023-06-01"
	claudeSecretKey      = "claude_api_key"
)

// ClaudeAdapter implements the Adapter interface for the Anthropic messages API.
// Auth travels in the x-api-key header rather than a bearer token.
type ClaudeAdapter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewClaudeAdapter creates a new Claude adapter
func NewClaudeAdapter(cfg AdapterConfig) *ClaudeAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = claudeDefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = claudeDefaultModel
	}
	return &ClaudeAdapter{
		baseURL: baseURL,
		model:   model,
		client:  cfg.client(),
	}
}

// ID returns the provider identity
func (a *ClaudeAdapter) ID() ProviderID {
	return Claude
}

// DisplayName returns the human-readable provider name
func (a *ClaudeAdapter) DisplayName() string {
	return "Claude"
}

// SecretKey returns the secret store key for the Claude credential
func (a *ClaudeAdapter) SecretKey() string {
	return claudeSecretKey
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends a single messages request and extracts the reply text from
// content[0].text.
func (a *ClaudeAdapter) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	body, err := json.Marshal(claudeRequest{
		Model:     a.model,
		MaxTokens: 1024,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := a.baseURL + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", transportError(Claude, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(Claude, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", upstreamError(Claude, resp.StatusCode, respBody)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", malformedError(Claude)
	}
	if len(parsed.Content) == 0 || parsed.Content[0].Text == "" {
		return "", malformedError(Claude)
	}
	return parsed.Content[0].Text, nil
}
