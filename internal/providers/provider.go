package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ProviderID identifies one of the fixed set of supported AI backends.
type ProviderID string

const (
	OpenAI ProviderID = "openai"
	Claude ProviderID = "claude"
	Gemini ProviderID = "gemini"
)

// Order is the fixed enumeration order. The first available provider in this
// order becomes the default active provider.
var Order = []ProviderID{OpenAI, Claude, Gemini}

// Valid reports whether id is a known provider identity.
func (id ProviderID) Valid() bool {
	switch id {
	case OpenAI, Claude, Gemini:
		return true
	}
	return false
}

// ParseProviderID converts a wire string to a ProviderID.
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(s)
	if !id.Valid() {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return id, nil
}

// ProviderError is returned when an upstream call fails: non-200 status,
// unreachable endpoint, or a response body missing the expected text path.
// It carries the upstream error message when one was present.
type ProviderError struct {
	Provider   ProviderID
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Adapter is implemented once per provider. An adapter knows how to build the
// provider-specific JSON payload, apply the provider-specific auth scheme,
// and extract generated text from the provider-specific response shape.
type Adapter interface {
	// ID returns the provider identity this adapter serves
	ID() ProviderID

	// DisplayName returns the human-readable provider name
	DisplayName() string

	// SecretKey returns the secret store key holding this provider's credential
	SecretKey() string

	// Complete sends a single prompt and returns the generated text.
	// One attempt per call: no retry, no backoff.
	Complete(ctx context.Context, apiKey, prompt string) (string, error)
}

// AdapterConfig holds the per-adapter knobs. The zero value selects the
// public endpoint, the adapter's default model, and a shared default client.
type AdapterConfig struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

const defaultRequestTimeout = 60 * time.Second

func (c AdapterConfig) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{
		Timeout: defaultRequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// upstreamError builds a ProviderError from a non-200 response, pulling the
// upstream message out of the common {"error":{"message":...}} envelope when
// the body carries one.
func upstreamError(id ProviderID, statusCode int, body []byte) *ProviderError {
	msg := extractErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	if msg == "" {
		msg = "request failed"
	}
	return &ProviderError{Provider: id, StatusCode: statusCode, Message: msg}
}

func extractErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Error.Message
}

// transportError wraps a network-level failure (no HTTP status available).
func transportError(id ProviderID, err error) *ProviderError {
	return &ProviderError{Provider: id, Message: err.Error()}
}

// malformedError flags a 200 response missing the expected text path.
func malformedError(id ProviderID) *ProviderError {
	return &ProviderError{Provider: id, StatusCode: http.StatusOK, Message: "response missing generated text"}
}

// Registry maps provider identities to adapters, preserving enumeration order.
type Registry struct {
	adapters map[ProviderID]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[ProviderID]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.ID()] = a
	}
	return &Registry{adapters: m}
}

// DefaultRegistry builds a registry with all three adapters on their public
// endpoints and default models, sharing one HTTP client. A nil client selects
// the default.
func DefaultRegistry(client *http.Client) *Registry {
	if client == nil {
		client = AdapterConfig{}.client()
	}
	return NewRegistry(
		NewOpenAIAdapter(AdapterConfig{HTTPClient: client}),
		NewClaudeAdapter(AdapterConfig{HTTPClient: client}),
		NewGeminiAdapter(AdapterConfig{HTTPClient: client}),
	)
}

// Get returns the adapter for id, if registered.
func (r *Registry) Get(id ProviderID) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// All returns registered adapters in enumeration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, id := range Order {
		if a, ok := r.adapters[id]; ok {
			out = append(out, a)
		}
	}
	return out
}
