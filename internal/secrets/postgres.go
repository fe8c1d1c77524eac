package secrets

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

const credentialsSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	key             TEXT PRIMARY KEY,
	encrypted_value TEXT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists credentials in a single-table Postgres keyring,
// AES-GCM encrypted at rest.
type PostgresStore struct {
	db  *sqlx.DB
	enc *Encryption
}

// NewPostgresStore connects to Postgres, ensures the credentials table
// exists, and verifies the connection.
func NewPostgresStore(dsn string, enc *Encryption) (*PostgresStore, error) {
	if enc == nil {
		return nil, fmt.Errorf("encryption is required")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &PostgresStore{db: db, enc: enc}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithDB wraps an existing connection (used by tests).
func NewPostgresStoreWithDB(db *sqlx.DB, enc *Encryption) *PostgresStore {
	return &PostgresStore{db: db, enc: enc}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, credentialsSchema); err != nil {
		return fmt.Errorf("failed to create credentials table: %w", err)
	}
	return nil
}

// Read fetches and decrypts the secret for key. A missing row is not an error.
func (s *PostgresStore) Read(ctx context.Context, key string) (string, bool, error) {
	var ciphertext string
	query := `SELECT encrypted_value FROM credentials WHERE key = $1`

	err := s.db.GetContext(ctx, &ciphertext, query, key)
	if err == sql.ErrNoRows {
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

// Write encrypts and upserts the secret for key.
func (s *PostgresStore) Write(ctx context.Context, key, value string) error {
	ciphertext, err := s.enc.EncryptString(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret %s: %w", key, err)
	}

	query := `
		INSERT INTO credentials (key, encrypted_value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET encrypted_value = EXCLUDED.encrypted_value, updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, key, ciphertext); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
