package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"chat_assistant/internal/chat"
	"chat_assistant/internal/config"
	"chat_assistant/internal/logging"
	"chat_assistant/internal/middleware"
	"chat_assistant/internal/providers"
	"chat_assistant/internal/secrets"
	"chat_assistant/internal/utils"
)

// Dependencies aggregates the services the HTTP layer needs.
type Dependencies struct {
	Config      *config.Config
	Session     *chat.Session
	Registry    *providers.Registry
	Logger      *utils.Logger
	ExchangeLog *logging.ExchangeLogger

	store secrets.Store
}

// NewRouter wires the secret store, provider registry, dispatch session, and
// exchange log, initializes the session, and returns the HTTP mux.
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	logger := utils.NewLogger("httpapi", utils.ParseLogLevel(cfg.LogLevel))

	store, err := buildSecretStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize secret store: %w", err)
	}

	registry := buildRegistry(cfg)
	session := chat.NewSession(chat.Config{
		Store:                 store,
		Registry:              registry,
		CredentialReadTimeout: cfg.Chat.CredentialReadTimeout,
		Logger:                utils.NewLogger("chat", utils.ParseLogLevel(cfg.LogLevel)),
	})

	deps := &Dependencies{
		Config:   cfg,
		Session:  session,
		Registry: registry,
		Logger:   logger,
		store:    store,
	}

	if cfg.ExchangeLog.Enabled {
		xlog, err := logging.NewExchangeLogger(logging.Config{
			Path:          cfg.ExchangeLog.Path,
			MaxSize:       cfg.ExchangeLog.MaxSize,
			MaxFiles:      cfg.ExchangeLog.MaxFiles,
			BufferSize:    cfg.ExchangeLog.BufferSize,
			FlushInterval: cfg.ExchangeLog.FlushInterval,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize exchange log: %w", err)
		}
		deps.ExchangeLog = xlog
		// Subscribe before Initialize so setup events are captured too.
		go xlog.Watch(session.Subscribe())
	}

	state, err := session.Initialize(context.Background())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	if state == chat.NeedsSetup {
		logger.Warn("no provider credentials stored; store credentials via PUT /v1/admin/credentials")
	}

	return deps.Routes(), deps, nil
}

// Routes registers all handlers on a fresh mux.
func (d *Dependencies) Routes() *http.ServeMux {
	chatHandler := NewChatHandler(d.Session, d.Registry, d.Logger)
	adminHandler := NewAdminHandler(d.Session, d.Config)
	adminJWT := middleware.AdminJWT(d.Config.JWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/messages", chatHandler.SendMessage)
	mux.HandleFunc("GET /v1/chat/transcript", chatHandler.GetTranscript)
	mux.HandleFunc("DELETE /v1/chat/transcript", chatHandler.ClearTranscript)
	mux.HandleFunc("DELETE /v1/chat/transcript/{index}", chatHandler.DeleteEntry)
	mux.HandleFunc("GET /v1/chat/providers", chatHandler.ListProviders)
	mux.HandleFunc("PUT /v1/chat/provider", chatHandler.SetProvider)

	mux.HandleFunc("POST /v1/admin/login", adminHandler.Login)
	mux.Handle("PUT /v1/admin/credentials", adminJWT(http.HandlerFunc(adminHandler.StoreCredentials)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"state":  d.Session.State().String(),
		})
	})

	return mux
}

// Shutdown releases the session, exchange log, and secret store.
func (d *Dependencies) Shutdown() {
	if d.Session != nil {
		d.Session.Close()
	}
	if d.ExchangeLog != nil {
		d.ExchangeLog.Shutdown()
	}
	if closer, ok := d.store.(io.Closer); ok {
		_ = closer.Close()
	}
}

func buildSecretStore(cfg *config.Config) (secrets.Store, error) {
	switch cfg.SecretStore.Backend {
	case config.BackendMemory:
		return secrets.NewMemoryStore(), nil

	case config.BackendRedis:
		enc, err := secrets.NewEncryptionFromBase64(cfg.SecretStore.EncryptionKey)
		if err != nil {
			return nil, err
		}
		return secrets.NewRedisStore(secrets.RedisConfig{
			Address:      cfg.SecretStore.Redis.Address,
			Password:     cfg.SecretStore.Redis.Password,
			DB:           cfg.SecretStore.Redis.DB,
			PoolSize:     cfg.SecretStore.Redis.PoolSize,
			MinIdleConns: cfg.SecretStore.Redis.MinIdleConns,
			DialTimeout:  cfg.SecretStore.Redis.DialTimeout,
			ReadTimeout:  cfg.SecretStore.Redis.ReadTimeout,
			WriteTimeout: cfg.SecretStore.Redis.WriteTimeout,
			KeyPrefix:    cfg.SecretStore.Redis.KeyPrefix,
		}, enc)

	case config.BackendPostgres:
		enc, err := secrets.NewEncryptionFromBase64(cfg.SecretStore.EncryptionKey)
		if err != nil {
			return nil, err
		}
		return secrets.NewPostgresStore(cfg.SecretStore.PostgresDSN, enc)
	}
	return nil, fmt.Errorf("unknown secret store backend %q", cfg.SecretStore.Backend)
}

func buildRegistry(cfg *config.Config) *providers.Registry {
	client := &http.Client{
		Timeout: cfg.Provider.RequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return providers.NewRegistry(
		providers.NewOpenAIAdapter(providers.AdapterConfig{
			BaseURL:    cfg.Provider.OpenAIBaseURL,
			Model:      cfg.Provider.OpenAIModel,
			HTTPClient: client,
		}),
		providers.NewClaudeAdapter(providers.AdapterConfig{
			BaseURL:    cfg.Provider.ClaudeBaseURL,
			Model:      cfg.Provider.ClaudeModel,
			HTTPClient: client,
		}),
		providers.NewGeminiAdapter(providers.AdapterConfig{
			BaseURL:    cfg.Provider.GeminiBaseURL,
			Model:      cfg.Provider.GeminiModel,
			HTTPClient: client,
		}),
	)
}
