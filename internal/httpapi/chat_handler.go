package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"chat_assistant/internal/chat"
	"chat_assistant/internal/providers"
	"chat_assistant/internal/utils"
)

// ChatHandler exposes the dispatch session over HTTP.
type ChatHandler struct {
	session  *chat.Session
	registry *providers.Registry
	logger   *utils.Logger
}

func NewChatHandler(session *chat.Session, registry *providers.Registry, logger *utils.Logger) *ChatHandler {
	return &ChatHandler{session: session, registry: registry, logger: logger}
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type transcriptResponse struct {
	State     string                 `json:"state"`
	Active    string                 `json:"active_provider,omitempty"`
	Entries   []chat.Entry           `json:"entries"`
	Available []providers.ProviderID `json:"available"`
}

type providerInfo struct {
	ID          providers.ProviderID `json:"id"`
	DisplayName string               `json:"display_name"`
	Available   bool                 `json:"available"`
	Active      bool                 `json:"active"`
}

type setProviderRequest struct {
	Provider string `json:"provider"`
}

// SendMessage appends the user's message, dispatches it to the active
// provider, and returns the transcript including the reply. Provider failures
// are rendered in the transcript, never as an HTTP error.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "text must not be empty")
		return
	}
	if h.session.State() != chat.Ready {
		utils.RespondWithError(w, http.StatusConflict, "no provider is set up")
		return
	}

	h.session.SendMessage(r.Context(), req.Text)
	h.respondTranscript(w)
}

// GetTranscript returns the current transcript and session state.
func (h *ChatHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	h.respondTranscript(w)
}

// ClearTranscript discards all entries. A new greeting is seeded when a
// provider is active.
func (h *ChatHandler) ClearTranscript(w http.ResponseWriter, r *http.Request) {
	h.session.ClearTranscript()
	h.respondTranscript(w)
}

// DeleteEntry removes a single transcript entry by index. Out-of-range
// indexes are ignored, matching the session semantics.
func (h *ChatHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	h.session.DeleteEntry(index)
	w.WriteHeader(http.StatusNoContent)
}

// ListProviders reports every known provider with its availability.
func (h *ChatHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	available := make(map[providers.ProviderID]bool)
	for _, id := range h.session.Available() {
		available[id] = true
	}
	active, _ := h.session.ActiveProvider()

	infos := make([]providerInfo, 0, len(providers.Order))
	for _, id := range providers.Order {
		infos = append(infos, providerInfo{
			ID:          id,
			DisplayName: h.displayName(id),
			Available:   available[id],
			Active:      id == active,
		})
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"providers": infos,
		"state":     h.session.State().String(),
	})
}

// SetProvider switches the active provider.
func (h *ChatHandler) SetProvider(w http.ResponseWriter, r *http.Request) {
	var req setProviderRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	id, err := providers.ParseProviderID(req.Provider)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.session.SetActiveProvider(id); err != nil {
		switch {
		case errors.Is(err, chat.ErrProviderUnavailable):
			utils.RespondWithError(w, http.StatusConflict, "provider "+string(id)+" has no stored credential")
		case errors.Is(err, chat.ErrNotReady):
			utils.RespondWithError(w, http.StatusConflict, "no provider is set up")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.respondTranscript(w)
}

func (h *ChatHandler) respondTranscript(w http.ResponseWriter) {
	active, _ := h.session.ActiveProvider()
	utils.RespondWithJSON(w, http.StatusOK, transcriptResponse{
		State:     h.session.State().String(),
		Active:    string(active),
		Entries:   h.session.Transcript(),
		Available: h.session.Available(),
	})
}

func (h *ChatHandler) displayName(id providers.ProviderID) string {
	if adapter, ok := h.registry.Get(id); ok {
		return adapter.DisplayName()
	}
	return string(id)
}
