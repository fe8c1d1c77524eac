package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat_assistant/internal/providers"
	"chat_assistant/internal/secrets"
	"chat_assistant/internal/utils"
)

const defaultCredentialReadTimeout = 5 * time.Second

// Config holds the session dependencies. Store and Registry are required.
type Config struct {
	Store    secrets.Store
	Registry *providers.Registry

	// CredentialReadTimeout bounds each secret read during Initialize.
	// Defaults to 5s. Outbound provider calls are not bounded here.
	CredentialReadTimeout time.Duration

	Logger *utils.Logger
}

// Session is the provider dispatch core. It owns the credential-derived
// available set, the active provider selection, and the session transcript.
// All state is guarded by a single mutex; the transcript has exactly one
// writer. Exactly one SendMessage may be in flight at a time, enforced by the
// sending flag checked-and-set under the mutex.
type Session struct {
	store       secrets.Store
	registry    *providers.Registry
	readTimeout time.Duration
	log         *utils.Logger

	mu         sync.Mutex
	state      State
	creds      map[providers.ProviderID]string
	available  []providers.ProviderID
	active     providers.ProviderID
	transcript []Entry
	sending    bool
	closed     bool
	subs       []chan Event
}

// NewSession creates a session in the Uninitialized state.
func NewSession(cfg Config) *Session {
	readTimeout := cfg.CredentialReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultCredentialReadTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = utils.NewLogger("chat")
	}
	return &Session{
		store:       cfg.Store,
		registry:    cfg.Registry,
		readTimeout: readTimeout,
		log:         logger,
		creds:       make(map[providers.ProviderID]string),
	}
}

// Initialize loads credentials for all known providers from the secret store
// and computes the available set. Each read is issued concurrently and
// bounded by the credential read timeout; a timed-out, failed, or missing
// read means "no credential", never a fatal error. Returns NeedsSetup when
// no provider has a credential, Ready otherwise. In the Ready case the first
// available provider (in enumeration order) becomes active and a welcome
// entry is appended.
func (s *Session) Initialize(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.state != Uninitialized {
		state := s.state
		s.mu.Unlock()
		return state, ErrAlreadyInitialized
	}
	s.setStateLocked(Initializing)
	s.mu.Unlock()

	type credential struct {
		id    providers.ProviderID
		value string
	}

	adapters := s.registry.All()
	results := make(chan credential, len(adapters))
	var wg sync.WaitGroup
	for _, adapter := range adapters {
		wg.Add(1)
		go func(adapter providers.Adapter) {
			defer wg.Done()
			readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
			defer cancel()

			value, ok, err := s.store.Read(readCtx, adapter.SecretKey())
			if err != nil {
				// Fail open: an unreadable credential is an absent credential.
				s.log.Warn("credential read failed", "provider", adapter.ID(), "error", err)
				return
			}
			if ok && value != "" {
				results <- credential{id: adapter.ID(), value: value}
			}
		}(adapter)
	}
	wg.Wait()
	close(results)

	s.mu.Lock()
	defer s.mu.Unlock()

	for cred := range results {
		s.creds[cred.id] = cred.value
	}
	s.recomputeAvailableLocked()

	if len(s.available) == 0 {
		s.setStateLocked(NeedsSetup)
		return NeedsSetup, nil
	}

	s.active = s.available[0]
	s.setStateLocked(Ready)
	s.appendWelcomeLocked()
	s.log.Info("session ready", "active", s.active, "available", len(s.available))
	return Ready, nil
}

// SetActiveProvider switches the active provider. The target must be in the
// available set. Switching appends a system transcript entry noting the
// change; selecting the already-active provider is a no-op.
func (s *Session) SetActiveProvider(id providers.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Ready {
		return ErrNotReady
	}
	if !s.isAvailableLocked(id) {
		return fmt.Errorf("%w: %s", ErrProviderUnavailable, id)
	}
	if id == s.active {
		return nil
	}

	s.active = id
	adapter, _ := s.registry.Get(id)
	s.appendLocked(Entry{
		Origin: OriginSystem,
		Text:   fmt.Sprintf("Switched to %s.", adapter.DisplayName()),
	})
	s.publishLocked(Event{Kind: EventProviderSwitched, Provider: id})
	return nil
}

// StoreCredentials persists each non-empty supplied secret to the secret
// store. Writes run independently per provider: one failed write does not
// prevent the others. ErrStorageUnavailable is returned only when every
// attempted write failed. On success the available set is recomputed and
// returned; a session in NeedsSetup becomes Ready once the set is non-empty,
// and an empty transcript is seeded with a welcome entry.
func (s *Session) StoreCredentials(ctx context.Context, supplied map[providers.ProviderID]string) ([]providers.ProviderID, error) {
	s.mu.Lock()
	if s.state != NeedsSetup && s.state != Ready {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	s.mu.Unlock()

	written := make(map[providers.ProviderID]string)
	attempted, failed := 0, 0
	var firstErr error

	for _, id := range providers.Order {
		secret := strings.TrimSpace(supplied[id])
		if secret == "" {
			continue
		}
		adapter, ok := s.registry.Get(id)
		if !ok {
			continue
		}

		attempted++
		if err := s.store.Write(ctx, adapter.SecretKey(), secret); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			s.log.Warn("credential write failed", "provider", id, "error", err)
			continue
		}
		s.log.Info("credential stored", "provider", id, "fingerprint", utils.Fingerprint(secret))
		written[id] = secret
	}

	if attempted > 0 && failed == attempted {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, firstErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, secret := range written {
		s.creds[id] = secret
	}
	s.recomputeAvailableLocked()

	if len(s.available) > 0 {
		if s.state == NeedsSetup {
			s.setStateLocked(Ready)
		}
		if s.active == "" || !s.isAvailableLocked(s.active) {
			s.active = s.available[0]
		}
		if len(s.transcript) == 0 {
			s.appendWelcomeLocked()
		}
	}

	return append([]providers.ProviderID(nil), s.available...), nil
}

// SendMessage routes text to the active provider. The user entry is appended
// before the network call, so the user-visible ordering holds even when the
// call fails. Failures are rendered as an assistant transcript entry rather
// than returned. Empty or whitespace-only text is a no-op, as is a call while
// another send is in flight. One attempt per call: no retry, no backoff.
func (s *Session) SendMessage(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.state != Ready || s.sending {
		s.mu.Unlock()
		return
	}
	s.sending = true
	active := s.active
	apiKey := s.creds[active]
	adapter, ok := s.registry.Get(active)
	s.appendLocked(Entry{Origin: OriginUser, Text: text})
	s.mu.Unlock()

	var reply string
	var err error
	if !ok {
		err = fmt.Errorf("%w: %s", ErrProviderUnavailable, active)
	} else {
		reply, err = complete(ctx, adapter, apiKey, text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.sending = false }()

	if err != nil {
		s.log.Warn("send failed", "provider", active, "error", err)
		s.appendLocked(Entry{
			Origin:   OriginAssistant,
			Provider: active,
			Text:     "Error: " + err.Error(),
		})
		return
	}
	s.appendLocked(Entry{Origin: OriginAssistant, Provider: active, Text: reply})
}

// complete invokes the adapter, converting a panic into an error so the
// sending flag is always released.
func complete(ctx context.Context, adapter providers.Adapter, apiKey, text string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return adapter.Complete(ctx, apiKey, text)
}

// ClearTranscript empties the transcript and re-seeds a welcome entry for the
// active provider, if any is available.
func (s *Session) ClearTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = nil
	s.publishLocked(Event{Kind: EventTranscriptCleared})
	if s.state == Ready && s.active != "" {
		s.appendWelcomeLocked()
	}
}

// DeleteEntry removes the transcript entry at index. Out-of-range indexes are
// a no-op, not an error, so callers need no bounds bookkeeping.
func (s *Session) DeleteEntry(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.transcript) {
		return
	}
	s.transcript = append(s.transcript[:index], s.transcript[index+1:]...)
}

// Transcript returns a copy of the transcript.
func (s *Session) Transcript() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.transcript...)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveProvider returns the active provider; ok is false when no provider
// is available.
func (s *Session) ActiveProvider() (providers.ProviderID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != ""
}

// Available returns the providers with a stored non-empty credential, in
// enumeration order.
func (s *Session) Available() []providers.ProviderID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]providers.ProviderID(nil), s.available...)
}

// Sending reports whether a send is in flight.
func (s *Session) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Close tears the session down: subscriber channels are closed and the
// transcript is discarded. Nothing is persisted.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.transcript = nil
}

func (s *Session) setStateLocked(state State) {
	s.state = state
	s.publishLocked(Event{Kind: EventStateChanged, State: state})
}

func (s *Session) recomputeAvailableLocked() {
	s.available = s.available[:0]
	for _, id := range providers.Order {
		if s.creds[id] != "" {
			s.available = append(s.available, id)
		}
	}
}

func (s *Session) isAvailableLocked(id providers.ProviderID) bool {
	for _, a := range s.available {
		if a == id {
			return true
		}
	}
	return false
}

func (s *Session) appendWelcomeLocked() {
	adapter, ok := s.registry.Get(s.active)
	if !ok {
		return
	}
	s.appendLocked(Entry{
		Origin:   OriginAssistant,
		Provider: s.active,
		Text:     fmt.Sprintf("Hello! You're chatting with %s. How can I help?", adapter.DisplayName()),
	})
}

func (s *Session) appendLocked(entry Entry) {
	entry.ID = uuid.New()
	entry.Timestamp = time.Now()
	// Keep transcript timestamps monotonically non-decreasing even if the
	// wall clock steps backwards.
	if n := len(s.transcript); n > 0 && entry.Timestamp.Before(s.transcript[n-1].Timestamp) {
		entry.Timestamp = s.transcript[n-1].Timestamp
	}
	s.transcript = append(s.transcript, entry)
	s.publishLocked(Event{Kind: EventEntryAppended, Entry: &entry})
}
