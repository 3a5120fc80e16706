package sqlite

import (
	"context"
	"crypto/rand"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dugoutlabs/dugout-client/internal/store"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}

	v, err := New(filepath.Join(t.TempDir(), "vault.db"), key)
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestVaultRoundTrip(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	if _, err := v.Load(ctx); !errors.Is(err, store.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials on empty vault, got %v", err)
	}

	saved := store.Credentials{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		SavedAt:      time.Now().UTC().Truncate(time.Second),
	}
	if err := v.Save(ctx, saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := v.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.AccessToken != saved.AccessToken || loaded.RefreshToken != saved.RefreshToken {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestVaultSaveOverwrites(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	for _, token := range []string{"first", "second"} {
		if err := v.Save(ctx, store.Credentials{AccessToken: token, SavedAt: time.Now()}); err != nil {
			t.Fatalf("save %s: %v", token, err)
		}
	}

	loaded, err := v.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.AccessToken != "second" {
		t.Fatalf("expected latest credentials, got %q", loaded.AccessToken)
	}
}

func TestVaultClear(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	if err := v.Save(ctx, store.Credentials{AccessToken: "a", SavedAt: time.Now()}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := v.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := v.Load(ctx); !errors.Is(err, store.ErrNoCredentials) {
		t.Fatalf("expected empty vault after clear, got %v", err)
	}
	// Clearing an empty vault is a no-op.
	if err := v.Clear(ctx); err != nil {
		t.Fatalf("clear empty: %v", err)
	}
}

func TestVaultWrongKeyFailsDecrypt(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vault.db")

	keyA := make([]byte, chacha20poly1305.KeySize)
	keyB := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(keyA); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := rand.Read(keyB); err != nil {
		t.Fatalf("generate key: %v", err)
	}

	ctx := context.Background()
	va, err := New(dbPath, keyA)
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	if err := va.Save(ctx, store.Credentials{AccessToken: "secret", SavedAt: time.Now()}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := va.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	vb, err := New(dbPath, keyB)
	if err != nil {
		t.Fatalf("reopen vault: %v", err)
	}
	t.Cleanup(func() { _ = vb.Close() })

	if _, err := vb.Load(ctx); err == nil {
		t.Fatalf("expected decrypt failure with wrong key")
	}
}

func TestLoadOrCreateKeyIsStable(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "vault.key")

	first, err := LoadOrCreateKey(keyPath)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	second, err := LoadOrCreateKey(keyPath)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("expected the same key on reload")
	}
}
