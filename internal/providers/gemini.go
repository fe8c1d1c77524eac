package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel   = "gemini-1.5-flash"
	geminiSecretKey      = "gemini_api_key"
)

// GeminiAdapter implements the Adapter interface for the Google Gemini API.
// Auth travels as a key query parameter rather than a header.
type GeminiAdapter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewGeminiAdapter creates a new Gemini adapter
func NewGeminiAdapter(cfg AdapterConfig) *GeminiAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}
	return &GeminiAdapter{
		baseURL: baseURL,
		model:   model,
		client:  cfg.client(),
	}
}

// ID returns the provider identity
func (a *GeminiAdapter) ID() ProviderID {
	return Gemini
}

// DisplayName returns the human-readable provider name
func (a *GeminiAdapter) DisplayName() string {
	return "Gemini"
}

// SecretKey returns the secret store key for the Gemini credential
func (a *GeminiAdapter) SecretKey() string {
	return geminiSecretKey
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Complete sends a single generateContent request and extracts the reply text
// from candidates[0].content.parts[0].text.
func (a *GeminiAdapter) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, a.model, url.QueryEscape(apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", transportError(Gemini, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(Gemini, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", upstreamError(Gemini, resp.StatusCode, respBody)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", malformedError(Gemini)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 ||
		parsed.Candidates[0].Content.Parts[0].Text == "" {
		return "", malformedError(Gemini)
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
