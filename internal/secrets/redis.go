package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection settings for the secret store
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

// RedisStore persists credentials in Redis, AES-GCM encrypted at rest.
type RedisStore struct {
	client    *redis.Client
	enc       *Encryption
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, enc *Encryption) (*RedisStore, error) {
	if enc == nil {
		return nil, fmt.Errorf("encryption is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "secrets:"
	}

	return &RedisStore{client: client, enc: enc, keyPrefix: prefix}, nil
}

// NewRedisStoreWithClient wraps an existing client (used by tests).
func NewRedisStoreWithClient(client *redis.Client, enc *Encryption, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "secrets:"
	}
	return &RedisStore{client: client, enc: enc, keyPrefix: keyPrefix}
}

// Read fetches and decrypts the secret for key. A missing key is not an error.
func (s *RedisStore) Read(ctx context.Context, key string) (string, bool, error) {
	ciphertext, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	plaintext, err := s.enc.DecryptString(ciphertext)
	if err != nil {
		return "", false, fmt.Errorf("failed to decrypt secret %s: %w", key, err)
	}
	return plaintext, true, nil
}

// Write encrypts and persists the secret for key with no expiry.
func (s *RedisStore) Write(ctx context.Context, key, value string) error {
	ciphertext, err := s.enc.EncryptString(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret %s: %w", key, err)
	}

	if err := s.client.Set(ctx, s.keyPrefix+key, ciphertext, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
