package httpapi

import (
	"errors"
	"net/http"

	"chat_assistant/internal/auth"
	"chat_assistant/internal/chat"
	"chat_assistant/internal/config"
	"chat_assistant/internal/providers"
	"chat_assistant/internal/utils"
)

// AdminHandler covers credential management and admin login.
type AdminHandler struct {
	session *chat.Session
	config  *config.Config
}

func NewAdminHandler(session *chat.Session, cfg *config.Config) *AdminHandler {
	return &AdminHandler{session: session, config: cfg}
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

type credentialsRequest struct {
	OpenAI string `json:"openai"`
	Claude string `json:"claude"`
	Gemini string `json:"gemini"`
}

type credentialsResponse struct {
	Available []providers.ProviderID `json:"available"`
	State     string                 `json:"state"`
}

// Login exchanges the admin password for a short-lived JWT.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.config.AdminPasswordHash == "" {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "admin login disabled: no password configured")
		return
	}

	var req loginRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !auth.VerifyPassword(req.Password, h.config.AdminPasswordHash) {
		utils.RespondWithError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := auth.GenerateAdminJWT("admin", h.config.JWTSecret)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// StoreCredentials writes the supplied API keys to the secret store and
// returns the refreshed availability. Empty fields are left untouched.
func (h *AdminHandler) StoreCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	available, err := h.session.StoreCredentials(r.Context(), map[providers.ProviderID]string{
		providers.OpenAI: req.OpenAI,
		providers.Claude: req.Claude,
		providers.Gemini: req.Gemini,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrStorageUnavailable):
			utils.RespondWithError(w, http.StatusServiceUnavailable, "credential storage unavailable")
		case errors.Is(err, chat.ErrNotInitialized):
			utils.RespondWithError(w, http.StatusConflict, "session not initialized")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, credentialsResponse{
		Available: available,
		State:     h.session.State().String(),
	})
}
