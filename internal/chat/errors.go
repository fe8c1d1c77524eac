package chat

import "errors"

var (
	// ErrAlreadyInitialized is returned when Initialize is called twice
	ErrAlreadyInitialized = errors.New("session already initialized")

	// ErrNotInitialized is returned when an operation requires a completed Initialize
	ErrNotInitialized = errors.New("session not initialized")

	// ErrNotReady is returned when an operation requires the Ready state
	ErrNotReady = errors.New("session not ready")

	// ErrProviderUnavailable is returned when selecting a provider with no stored credential
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrStorageUnavailable is returned when no credential write could reach the secret store
	ErrStorageUnavailable = errors.New("credential storage unavailable")
)
