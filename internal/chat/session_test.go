package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat_assistant/internal/providers"
	"chat_assistant/internal/secrets"
)

// fakeAdapter is a scripted provider adapter.
type fakeAdapter struct {
	id    providers.ProviderID
	reply string
	err   error
	panic bool
	block chan struct{} // when non-nil, Complete waits until closed

	mu     sync.Mutex
	calls  int
	gotKey string
}

func (f *fakeAdapter) ID() providers.ProviderID { return f.id }
func (f *fakeAdapter) DisplayName() string      { return string(f.id) }
func (f *fakeAdapter) SecretKey() string        { return string(f.id) + "_api_key" }

func (f *fakeAdapter) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.gotKey = apiKey
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if f.panic {
		panic("adapter blew up")
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAdapter) lastKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotKey
}

// failingStore wraps a Store and fails selected operations.
type failingStore struct {
	inner     secrets.Store
	failReads bool
	failKeys  map[string]bool // writes to these keys fail
	failAll   bool            // all writes fail
}

func (s *failingStore) Read(ctx context.Context, key string) (string, bool, error) {
	if s.failReads {
		return "", false, secrets.ErrStoreUnavailable
	}
	return s.inner.Read(ctx, key)
}

func (s *failingStore) Write(ctx context.Context, key, value string) error {
	if s.failAll || s.failKeys[key] {
		return secrets.ErrStoreUnavailable
	}
	return s.inner.Write(ctx, key, value)
}

// slowStore blocks reads until the context expires.
type slowStore struct{}

func (s *slowStore) Read(ctx context.Context, key string) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

func (s *slowStore) Write(ctx context.Context, key, value string) error { return nil }

func newTestRegistry(adapters ...*fakeAdapter) *providers.Registry {
	all := make([]providers.Adapter, len(adapters))
	for i, a := range adapters {
		all[i] = a
	}
	return providers.NewRegistry(all...)
}

func newReadySession(t *testing.T, adapters ...*fakeAdapter) *Session {
	t.Helper()

	store := secrets.NewMemoryStore()
	ctx := context.Background()
	for _, a := range adapters {
		require.NoError(t, store.Write(ctx, a.SecretKey(), "key-"+string(a.ID())))
	}

	s := NewSession(Config{Store: store, Registry: newTestRegistry(adapters...)})
	state, err := s.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, Ready, state)
	return s
}

func TestInitialize_NoCredentialsNeedsSetup(t *testing.T) {
	s := NewSession(Config{
		Store:    secrets.NewMemoryStore(),
		Registry: newTestRegistry(&fakeAdapter{id: providers.OpenAI}),
	})

	state, err := s.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NeedsSetup, state)
	assert.Empty(t, s.Available())
	assert.Empty(t, s.Transcript())

	_, ok := s.ActiveProvider()
	assert.False(t, ok)
}

func TestInitialize_PicksFirstInEnumerationOrder(t *testing.T) {
	claude := &fakeAdapter{id: providers.Claude}
	gemini := &fakeAdapter{id: providers.Gemini}

	store := secrets.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Write(ctx, gemini.SecretKey(), "gk"))
	require.NoError(t, store.Write(ctx, claude.SecretKey(), "ak"))

	s := NewSession(Config{Store: store, Registry: newTestRegistry(claude, gemini)})
	state, err := s.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, Ready, state)

	active, ok := s.ActiveProvider()
	require.True(t, ok)
	assert.Equal(t, providers.Claude, active)
	assert.Equal(t, []providers.ProviderID{providers.Claude, providers.Gemini}, s.Available())

	entries := s.Transcript()
	require.Len(t, entries, 1)
	assert.Equal(t, OriginAssistant, entries[0].Origin)
	assert.Equal(t, providers.Claude, entries[0].Provider)
}

func TestInitialize_ReadTimeoutFailsOpen(t *testing.T) {
	s := NewSession(Config{
		Store:                 &slowStore{},
		Registry:              newTestRegistry(&fakeAdapter{id: providers.OpenAI}),
		CredentialReadTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	state, err := s.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NeedsSetup, state)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInitialize_ReadErrorTreatedAsAbsent(t *testing.T) {
	s := NewSession(Config{
		Store:    &failingStore{inner: secrets.NewMemoryStore(), failReads: true},
		Registry: newTestRegistry(&fakeAdapter{id: providers.OpenAI}),
	})

	state, err := s.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NeedsSetup, state)
}

func TestInitialize_Twice(t *testing.T) {
	s := newReadySession(t, &fakeAdapter{id: providers.OpenAI})

	state, err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.Equal(t, Ready, state)
}

func TestStoreCredentials_NeedsSetupToReady(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI}
	s := NewSession(Config{
		Store:    secrets.NewMemoryStore(),
		Registry: newTestRegistry(openai),
	})
	ctx := context.Background()

	state, err := s.Initialize(ctx)
	require.NoError(t, err)
	require.Equal(t, NeedsSetup, state)

	available, err := s.StoreCredentials(ctx, map[providers.ProviderID]string{providers.OpenAI: "key1"})
	require.NoError(t, err)
	assert.Equal(t, []providers.ProviderID{providers.OpenAI}, available)
	assert.Equal(t, Ready, s.State())

	active, ok := s.ActiveProvider()
	require.True(t, ok)
	assert.Equal(t, providers.OpenAI, active)

	entries := s.Transcript()
	require.Len(t, entries, 1)
	assert.Equal(t, OriginAssistant, entries[0].Origin)
	assert.Equal(t, providers.OpenAI, entries[0].Provider)
}

func TestStoreCredentials_EmptySecretsSkipped(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI}
	claude := &fakeAdapter{id: providers.Claude}
	s := NewSession(Config{
		Store:    secrets.NewMemoryStore(),
		Registry: newTestRegistry(openai, claude),
	})
	ctx := context.Background()
	_, err := s.Initialize(ctx)
	require.NoError(t, err)

	available, err := s.StoreCredentials(ctx, map[providers.ProviderID]string{
		providers.OpenAI: "key1",
		providers.Claude: "   ",
	})
	require.NoError(t, err)
	assert.Equal(t, []providers.ProviderID{providers.OpenAI}, available)
}

func TestStoreCredentials_AvailabilityTracksLastStored(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI}
	claude := &fakeAdapter{id: providers.Claude}
	gemini := &fakeAdapter{id: providers.Gemini}
	s := NewSession(Config{
		Store:    secrets.NewMemoryStore(),
		Registry: newTestRegistry(openai, claude, gemini),
	})
	ctx := context.Background()
	_, err := s.Initialize(ctx)
	require.NoError(t, err)

	_, err = s.StoreCredentials(ctx, map[providers.ProviderID]string{providers.Claude: "ak-1"})
	require.NoError(t, err)
	_, err = s.StoreCredentials(ctx, map[providers.ProviderID]string{providers.Gemini: "gk-1"})
	require.NoError(t, err)
	available, err := s.StoreCredentials(ctx, map[providers.ProviderID]string{providers.Claude: "ak-2"})
	require.NoError(t, err)

	assert.Equal(t, []providers.ProviderID{providers.Claude, providers.Gemini}, available)
}

func TestStoreCredentials_PartialWriteFailure(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI}
	claude := &fakeAdapter{id: providers.Claude}
	store := &failingStore{
		inner:    secrets.NewMemoryStore(),
		failKeys: map[string]bool{claude.SecretKey(): true},
	}
	s := NewSession(Config{Store: store, Registry: newTestRegistry(openai, claude)})
	ctx := context.Background()
	_, err := s.Initialize(ctx)
	require.NoError(t, err)

	available, err := s.StoreCredentials(ctx, map[providers.ProviderID]string{
		providers.OpenAI: "key1",
		providers.Claude: "key2",
	})
	require.NoError(t, err)
	assert.Equal(t, []providers.ProviderID{providers.OpenAI}, available)
}

func TestStoreCredentials_StorageUnavailable(t *testing.T) {
	store := &failingStore{inner: secrets.NewMemoryStore(), failAll: true}
	s := NewSession(Config{
		Store:    store,
		Registry: newTestRegistry(&fakeAdapter{id: providers.OpenAI}),
	})
	ctx := context.Background()
	_, err := s.Initialize(ctx)
	require.NoError(t, err)

	_, err = s.StoreCredentials(ctx, map[providers.ProviderID]string{providers.OpenAI: "key1"})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, NeedsSetup, s.State())
}

func TestStoreCredentials_BeforeInitialize(t *testing.T) {
	s := NewSession(Config{
		Store:    secrets.NewMemoryStore(),
		Registry: newTestRegistry(&fakeAdapter{id: providers.OpenAI}),
	})

	_, err := s.StoreCredentials(context.Background(), map[providers.ProviderID]string{providers.OpenAI: "key1"})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSetActiveProvider(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI}
	claude := &fakeAdapter{id: providers.Claude}
	s := newReadySession(t, openai, claude)

	t.Run("unavailable target rejected, selection unchanged", func(t *testing.T) {
		err := s.SetActiveProvider(providers.Gemini)
		assert.ErrorIs(t, err, ErrProviderUnavailable)

		active, _ := s.ActiveProvider()
		assert.Equal(t, providers.OpenAI, active)
	})

	t.Run("switch appends a system entry", func(t *testing.T) {
		before := len(s.Transcript())
		require.NoError(t, s.SetActiveProvider(providers.Claude))

		active, _ := s.ActiveProvider()
		assert.Equal(t, providers.Claude, active)

		entries := s.Transcript()
		require.Len(t, entries, before+1)
		assert.Equal(t, OriginSystem, entries[len(entries)-1].Origin)
	})

	t.Run("re-selecting the active provider is a no-op", func(t *testing.T) {
		before := len(s.Transcript())
		require.NoError(t, s.SetActiveProvider(providers.Claude))
		assert.Len(t, s.Transcript(), before)
	})
}

func TestSendMessage_Success(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI, reply: "hi there"}
	s := newReadySession(t, openai)

	s.SendMessage(context.Background(), "hello")

	entries := s.Transcript()
	require.Len(t, entries, 3) // welcome, user, assistant
	assert.Equal(t, OriginUser, entries[1].Origin)
	assert.Equal(t, "hello", entries[1].Text)
	assert.Equal(t, OriginAssistant, entries[2].Origin)
	assert.Equal(t, "hi there", entries[2].Text)
	assert.Equal(t, providers.OpenAI, entries[2].Provider)
	assert.False(t, s.Sending())
}

func TestSendMessage_UsesStoredCredential(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI, reply: "ok"}
	s := newReadySession(t, openai)

	s.SendMessage(context.Background(), "hello")
	assert.Equal(t, "key-openai", openai.lastKey())
}

func TestSendMessage_FailureRenderedInTranscript(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI, err: &providers.ProviderError{
		Provider: providers.OpenAI, StatusCode: 500, Message: "internal error",
	}}
	s := newReadySession(t, openai)

	availableBefore := s.Available()
	s.SendMessage(context.Background(), "hello")

	entries := s.Transcript()
	require.Len(t, entries, 3)
	assert.Equal(t, OriginUser, entries[1].Origin)
	assert.Equal(t, OriginAssistant, entries[2].Origin)
	assert.Contains(t, entries[2].Text, "Error: ")
	assert.Contains(t, entries[2].Text, "internal error")

	// Failure leaves selection and availability untouched.
	active, _ := s.ActiveProvider()
	assert.Equal(t, providers.OpenAI, active)
	assert.Equal(t, availableBefore, s.Available())
	assert.Equal(t, Ready, s.State())
	assert.False(t, s.Sending())
}

func TestSendMessage_EmptyTextNoOp(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI, reply: "hi"}
	s := newReadySession(t, openai)

	s.SendMessage(context.Background(), "")
	s.SendMessage(context.Background(), "   \n\t ")

	assert.Len(t, s.Transcript(), 1) // welcome only
	assert.Equal(t, 0, openai.callCount())
}

func TestSendMessage_SecondCallDroppedWhileInFlight(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI, reply: "first reply", block: make(chan struct{})}
	s := newReadySession(t, openai)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.SendMessage(context.Background(), "first")
	}()

	require.Eventually(t, s.Sending, time.Second, time.Millisecond)

	// Dropped, not queued: returns immediately without touching the transcript.
	s.SendMessage(context.Background(), "second")

	close(openai.block)
	<-done

	entries := s.Transcript()
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[1].Text)
	assert.Equal(t, "first reply", entries[2].Text)
	assert.Equal(t, 1, openai.callCount())
}

func TestSendMessage_AdapterPanicReleasesSendingFlag(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI, panic: true}
	s := newReadySession(t, openai)

	s.SendMessage(context.Background(), "hello")

	assert.False(t, s.Sending())
	entries := s.Transcript()
	require.Len(t, entries, 3)
	assert.Contains(t, entries[2].Text, "Error: ")

	// The session stays usable after a panic.
	openai.panic = false
	openai.reply = "recovered"
	s.SendMessage(context.Background(), "again")
	entries = s.Transcript()
	assert.Equal(t, "recovered", entries[len(entries)-1].Text)
}

func TestSendMessage_BeforeReadyNoOp(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI, reply: "hi"}
	s := NewSession(Config{
		Store:    secrets.NewMemoryStore(),
		Registry: newTestRegistry(openai),
	})
	ctx := context.Background()
	_, err := s.Initialize(ctx)
	require.NoError(t, err)

	s.SendMessage(ctx, "hello")
	assert.Empty(t, s.Transcript())
	assert.Equal(t, 0, openai.callCount())
}

func TestClearTranscript_ReseedsWelcome(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI, reply: "hi"}
	s := newReadySession(t, openai)
	s.SendMessage(context.Background(), "hello")
	require.Len(t, s.Transcript(), 3)

	s.ClearTranscript()

	entries := s.Transcript()
	require.Len(t, entries, 1)
	assert.Equal(t, OriginAssistant, entries[0].Origin)
	assert.Equal(t, providers.OpenAI, entries[0].Provider)
}

func TestDeleteEntry(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI, reply: "hi"}
	s := newReadySession(t, openai)
	s.SendMessage(context.Background(), "hello")
	require.Len(t, s.Transcript(), 3)

	t.Run("out of range is a no-op", func(t *testing.T) {
		s.DeleteEntry(-1)
		s.DeleteEntry(3)
		s.DeleteEntry(1000)
		assert.Len(t, s.Transcript(), 3)
	})

	t.Run("valid index removes the entry", func(t *testing.T) {
		s.DeleteEntry(1)
		entries := s.Transcript()
		require.Len(t, entries, 2)
		assert.Equal(t, "hi", entries[1].Text)
	})
}

func TestTranscript_TimestampsNonDecreasing(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI, reply: "hi"}
	s := newReadySession(t, openai)
	for i := 0; i < 5; i++ {
		s.SendMessage(context.Background(), fmt.Sprintf("msg %d", i))
	}

	entries := s.Transcript()
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
}

func TestSubscribe_DeliversEvents(t *testing.T) {
	openai := &fakeAdapter{id: providers.OpenAI, reply: "hi"}
	s := newReadySession(t, openai)

	events := s.Subscribe()
	s.SendMessage(context.Background(), "hello")

	var kinds []EventKind
	for len(kinds) < 2 {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []EventKind{EventEntryAppended, EventEntryAppended}, kinds)
}

func TestClose_ClosesSubscribers(t *testing.T) {
	s := newReadySession(t, &fakeAdapter{id: providers.OpenAI})
	events := s.Subscribe()

	s.Close()

	_, open := <-events
	assert.False(t, open)
	assert.Empty(t, s.Transcript())

	// Subscribing after Close yields a closed channel.
	late := s.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestErrorTaxonomy(t *testing.T) {
	// ProviderError renders the upstream message and status.
	err := &providers.ProviderError{Provider: providers.Claude, StatusCode: 429, Message: "slow down"}
	assert.Contains(t, err.Error(), "claude")
	assert.Contains(t, err.Error(), "slow down")
	assert.Contains(t, err.Error(), "429")

	assert.False(t, errors.Is(ErrProviderUnavailable, ErrStorageUnavailable))
}
