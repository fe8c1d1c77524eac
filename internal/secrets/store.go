package secrets

import (
	"context"
	"errors"
)

// Store keys for the three provider credentials. These keys are the entire
// persisted-state surface of the service.
const (
	KeyOpenAI = "openai_api_key"
	KeyClaude = "claude_api_key"
	KeyGemini = "gemini_api_key"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("secret store unavailable")

// Store is the external keyed secret collaborator. Reads report absence via
// the bool; errors mean the store itself misbehaved.
type Store interface {
	// Read returns the secret for key, or ok=false when no secret is stored
	Read(ctx context.Context, key string) (value string, ok bool, err error)

	// Write persists the secret for key, overwriting any previous value
	Write(ctx context.Context, key, value string) error
}
