package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dugoutlabs/dugout-client/internal/log"
	"github.com/dugoutlabs/dugout-client/internal/store/memory"
)

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestTokenExpiry(t *testing.T) {
	token := signedToken(t, time.Hour)

	exp, err := tokenExpiry(token)
	if err != nil {
		t.Fatalf("tokenExpiry: %v", err)
	}
	if until := time.Until(exp); until < 59*time.Minute || until > 61*time.Minute {
		t.Fatalf("unexpected expiry distance %v", until)
	}

	if _, err := tokenExpiry("not-a-jwt"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}

func TestTokenExpiresWithin(t *testing.T) {
	m := NewManager(nil, memory.New(), memory.New(), Config{RefreshPath: "/api/auth/refresh"}, Hooks{}, log.Nop())

	// No token held: err toward refreshing.
	if !m.TokenExpiresWithin(time.Minute) {
		t.Fatalf("expected true with no token")
	}

	setToken := func(tok string) {
		m.mu.Lock()
		m.accessToken = tok
		m.mu.Unlock()
	}

	setToken(signedToken(t, time.Hour))
	if m.TokenExpiresWithin(time.Minute) {
		t.Fatalf("hour-long token must not expire within a minute")
	}
	if !m.TokenExpiresWithin(2 * time.Hour) {
		t.Fatalf("hour-long token expires within two hours")
	}

	setToken(signedToken(t, -time.Minute))
	if !m.TokenExpiresWithin(time.Second) {
		t.Fatalf("expired token must report true")
	}

	setToken("garbage")
	if !m.TokenExpiresWithin(time.Second) {
		t.Fatalf("unreadable token must err toward refreshing")
	}
}
