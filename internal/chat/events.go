package chat

import "chat_assistant/internal/providers"

// EventKind enumerates the session notifications delivered to subscribers.
type EventKind string

const (
	EventEntryAppended     EventKind = "entry_appended"
	EventTranscriptCleared EventKind = "transcript_cleared"
	EventStateChanged      EventKind = "state_changed"
	EventProviderSwitched  EventKind = "provider_switched"
)

// Event is a session notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	Entry    *Entry
	State    State
	Provider providers.ProviderID
}

const subscriberBuffer = 32

// Subscribe registers a new event channel. Publishing never blocks the
// session: a subscriber that falls more than subscriberBuffer events behind
// loses events. The channel is closed on session Close.
func (s *Session) Subscribe() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// publishLocked fans an event out to all subscribers. Callers hold s.mu.
func (s *Session) publishLocked(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; drop rather than block the session.
		}
	}
}
