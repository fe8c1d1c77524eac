package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Secret store backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds configuration for the assistant service.
type Config struct {
	HTTPPort          string
	LogLevel          string
	JWTSecret         []byte
	AdminPasswordHash string
	SecretStore       SecretStoreConfig
	Provider          ProviderConfig
	Chat              ChatConfig
	ExchangeLog       ExchangeLogConfig
}

// SecretStoreConfig selects and configures the credential store backend
type SecretStoreConfig struct {
	Backend       string // memory, redis, or postgres
	EncryptionKey string // base64 AES key; required for redis and postgres
	Redis         RedisConfig
	PostgresDSN   string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

// ProviderConfig holds outbound provider settings
type ProviderConfig struct {
	OpenAIBaseURL  string
	OpenAIModel    string
	ClaudeBaseURL  string
	ClaudeModel    string
	GeminiBaseURL  string
	GeminiModel    string
	RequestTimeout time.Duration
}

// ChatConfig holds dispatch core settings
type ChatConfig struct {
	CredentialReadTimeout time.Duration
}

// ExchangeLogConfig holds settings for the JSONL exchange log
type ExchangeLogConfig struct {
	Enabled       bool
	Path          string
	MaxSize       int64
	MaxFiles      int
	BufferSize    int
	FlushInterval time.Duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	backend := getEnvString("SECRET_STORE_BACKEND", BackendMemory)
	switch backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return nil, fmt.Errorf("unknown secret store backend %q", backend)
	}

	encryptionKey := os.Getenv("SECRET_ENCRYPTION_KEY")
	if backend != BackendMemory && encryptionKey == "" {
		return nil, fmt.Errorf("SECRET_ENCRYPTION_KEY is required for the %s backend", backend)
	}

	postgresDSN := os.Getenv("POSTGRES_DSN")
	if backend == BackendPostgres && postgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
	}

	cfg := &Config{
		HTTPPort:          getEnvString("HTTP_PORT", "8080"),
		LogLevel:          getEnvString("LOG_LEVEL", "info"),
		JWTSecret:         []byte(getEnvString("JWT_SECRET", "")),
		AdminPasswordHash: getEnvString("ADMIN_PASSWORD_HASH", ""),
		SecretStore: SecretStoreConfig{
			Backend:       backend,
			EncryptionKey: encryptionKey,
			PostgresDSN:   postgresDSN,
			Redis: RedisConfig{
				Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
				Password:     getEnvString("REDIS_PASSWORD", ""),
				DB:           getEnvInt("REDIS_DB", 0),
				PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
				MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
				DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
				ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
				WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
				KeyPrefix:    getEnvString("REDIS_KEY_PREFIX", "secrets:"),
			},
		},
		Provider: ProviderConfig{
			OpenAIBaseURL:  getEnvString("OPENAI_BASE_URL", ""),
			OpenAIModel:    getEnvString("OPENAI_MODEL", ""),
			ClaudeBaseURL:  getEnvString("CLAUDE_BASE_URL", ""),
			ClaudeModel:    getEnvString("CLAUDE_MODEL", ""),
			GeminiBaseURL:  getEnvString("GEMINI_BASE_URL", ""),
			GeminiModel:    getEnvString("GEMINI_MODEL", ""),
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Chat: ChatConfig{
			CredentialReadTimeout: getEnvDuration("CREDENTIAL_READ_TIMEOUT", 5*time.Second),
		},
		ExchangeLog: ExchangeLogConfig{
			Enabled:       getEnvString("EXCHANGE_LOG_ENABLED", "false") == "true",
			Path:          getEnvString("EXCHANGE_LOG_PATH", "/var/log/chat-assistant/exchanges.jsonl"),
			MaxSize:       getEnvInt64("EXCHANGE_LOG_MAX_SIZE", 10_485_760),
			MaxFiles:      getEnvInt("EXCHANGE_LOG_MAX_FILES", 5),
			BufferSize:    getEnvInt("EXCHANGE_LOG_BUFFER_SIZE", 256),
			FlushInterval: getEnvDuration("EXCHANGE_LOG_FLUSH_INTERVAL", 5*time.Second),
		},
	}

	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}
