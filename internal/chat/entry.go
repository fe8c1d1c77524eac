package chat

import (
	"time"

	"github.com/google/uuid"

	"chat_assistant/internal/providers"
)

// Origin identifies who produced a transcript entry.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
	OriginSystem    Origin = "system"
)

// Entry is one record in the session transcript. Entries are append-only and
// strictly ordered by insertion; timestamps are monotonically non-decreasing.
type Entry struct {
	ID        uuid.UUID            `json:"id"`
	Origin    Origin               `json:"origin"`
	Text      string               `json:"text"`
	Provider  providers.ProviderID `json:"provider,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// State tracks the session lifecycle:
// Uninitialized → Initializing → {NeedsSetup | Ready}.
type State int

const (
	Uninitialized State = iota
	Initializing
	NeedsSetup
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case NeedsSetup:
		return "needs_setup"
	case Ready:
		return "ready"
	}
	return "unknown"
}
