package store

import (
	"context"
	"errors"
	"time"
)

// ErrNoCredentials is returned when a store holds no saved credentials.
var ErrNoCredentials = errors.New("no stored credentials")

// Credentials is the persisted authentication material for one user session.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// TokenStore persists credentials to one storage scope. The durable scope
// survives process restarts ("remember me"); the session scope does not.
// Both scopes are cleared together on logout.
type TokenStore interface {
	Save(ctx context.Context, creds Credentials) error
	// Load returns ErrNoCredentials when the scope is empty.
	Load(ctx context.Context) (*Credentials, error)
	Clear(ctx context.Context) error
}
