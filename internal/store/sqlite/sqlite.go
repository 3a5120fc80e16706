package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dugoutlabs/dugout-client/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	nonce      BLOB NOT NULL,
	ciphertext BLOB NOT NULL,
	saved_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Vault implements store.TokenStore on SQLite. This is the durable
// "remember me" scope; the stored credentials are encrypted at rest
// with XChaCha20-Poly1305.
type Vault struct {
	db  *sql.DB
	key []byte
}

// New creates a vault backed by the SQLite file at dbPath.
// key must be chacha20poly1305.KeySize bytes.
func New(dbPath string, key []byte) (*Vault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Vault{db: db, key: key}, nil
}

// Close closes the database connection.
func (v *Vault) Close() error {
	return v.db.Close()
}

func (v *Vault) Save(ctx context.Context, creds store.Credentials) error {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	query := `
		INSERT INTO credentials (id, nonce, ciphertext, saved_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nonce = excluded.nonce,
			ciphertext = excluded.ciphertext,
			saved_at = excluded.saved_at
	`
	if _, err := v.db.ExecContext(ctx, query, nonce, ciphertext, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert credentials: %w", err)
	}
	return nil
}

func (v *Vault) Load(ctx context.Context) (*store.Credentials, error) {
	var nonce, ciphertext []byte
	row := v.db.QueryRowContext(ctx, `SELECT nonce, ciphertext FROM credentials WHERE id = 1`)
	if err := row.Scan(&nonce, &ciphertext); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoCredentials
		}
		return nil, fmt.Errorf("select credentials: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}

	var creds store.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return &creds, nil
}

func (v *Vault) Clear(ctx context.Context) error {
	if _, err := v.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// LoadOrCreateKey reads the vault key from keyPath, generating and writing a
// fresh random key on first run.
func LoadOrCreateKey(keyPath string) ([]byte, error) {
	key, err := os.ReadFile(keyPath)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("key file %s has wrong size %d", keyPath, len(key))
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o755); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}
