package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry reads the exp claim from an access token without verifying
// the signature. The client only schedules around expiry; verification is
// the server's job.
func tokenExpiry(tokenString string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no expiry claim")
	}
	return claims.ExpiresAt.Time, nil
}

// TokenExpiresWithin reports whether the current access token expires
// within d. True when no token is held or the token is unreadable, so
// callers err toward refreshing.
func (m *Manager) TokenExpiresWithin(d time.Duration) bool {
	token := m.AccessToken()
	if token == "" {
		return true
	}
	exp, err := tokenExpiry(token)
	if err != nil {
		m.log.Debug().Err(err).Msg("could not read token expiry")
		return true
	}
	return m.nowFunc().Add(d).After(exp)
}
