package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dugoutlabs/dugout-client/internal/api"
	"github.com/dugoutlabs/dugout-client/internal/store"
)

// State is the authentication state machine position.
type State int

const (
	LoggedOut State = iota
	LoggingIn
	LoggedIn
	Refreshing
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case LoggingIn:
		return "logging_in"
	case LoggedIn:
		return "logged_in"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

var (
	// ErrNoStoredSession is returned by TryAutoLogin when neither storage
	// scope holds credentials. This is the fresh-visitor case, not a
	// session expiry, so no notice or redirect fires.
	ErrNoStoredSession = errors.New("no stored session")
	// ErrNotLoggedIn is returned by operations that need an active session.
	ErrNotLoggedIn = errors.New("not logged in")
)

const sessionExpiredNotice = "Your session has expired. Please sign in again."

// UserProfile is the identity of the signed-in user.
type UserProfile struct {
	ID           int64  `json:"userId"`
	Email        string `json:"email"`
	Nickname     string `json:"nickname"`
	Club         string `json:"club"`
	ProfileImage string `json:"profileImage"`
	Provider     string `json:"provider"`
}

// sameIdentity compares the identity-relevant fields used by SetUser to
// suppress redundant updates.
func sameIdentity(a, b UserProfile) bool {
	return a.ID == b.ID &&
		a.Nickname == b.Nickname &&
		a.Club == b.Club &&
		a.ProfileImage == b.ProfileImage
}

// Hooks are the presentation-layer callbacks the manager invokes on
// session expiry. Both are optional.
type Hooks struct {
	// OnSessionExpired surfaces a user-visible notice before the redirect.
	OnSessionExpired func(notice string)
	// Redirect navigates to the login entry point. Fired NoticeDelay after
	// the notice so the notice has time to render.
	Redirect func(target string)
}

// Config holds manager settings.
type Config struct {
	// RefreshPath is the token refresh endpoint.
	RefreshPath string
	// NoticeDelay is the grace period between the expiry notice and the
	// redirect to login.
	NoticeDelay time.Duration
	// LoginTarget is where the redirect hook points. Defaults to "/login".
	LoginTarget string
}

// Manager holds the authentication session: current user, access token,
// and the login / logout / refresh transitions. It is constructed once at
// application start and shared by reference. It also serves as the HTTP
// client's token source, closing the 401 retry loop.
type Manager struct {
	client  *api.Client
	durable store.TokenStore
	scoped  store.TokenStore
	cfg     Config
	hooks   Hooks
	log     *zerolog.Logger

	mu           sync.Mutex
	state        State
	user         *UserProfile
	accessToken  string
	refreshToken string
	rememberMe   bool
	inflight     *refreshCall

	nowFunc func() time.Time
	afterFn func(time.Duration, func()) *time.Timer
}

type refreshCall struct {
	done chan struct{}
	err  error
}

// NewManager builds a session manager over the shared client and the two
// storage scopes: durable survives restarts ("remember me"), scoped does not.
func NewManager(client *api.Client, durable, scoped store.TokenStore, cfg Config, hooks Hooks, logger *zerolog.Logger) *Manager {
	if cfg.LoginTarget == "" {
		cfg.LoginTarget = "/login"
	}
	return &Manager{
		client:  client,
		durable: durable,
		scoped:  scoped,
		cfg:     cfg,
		hooks:   hooks,
		log:     logger,
		state:   LoggedOut,
		nowFunc: time.Now,
		afterFn: time.AfterFunc,
	}
}

// State returns the current state machine position.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// User returns a copy of the current user profile, or nil when logged out.
func (m *Manager) User() *UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// AccessToken returns the current bearer token, or "" when logged out.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// IsAuthenticated reports whether both a user and an access token are held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil && m.accessToken != ""
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenGrant struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken,omitempty"`
	User         *UserProfile `json:"user,omitempty"`
}

// Login authenticates against the backend and transitions to LoggedIn.
// rememberMe selects the durable storage scope; the other scope is cleared
// so the token lives in exactly one place.
func (m *Manager) Login(ctx context.Context, email, password string, rememberMe bool) error {
	m.mu.Lock()
	if m.state == LoggingIn {
		m.mu.Unlock()
		return errors.New("login already in progress")
	}
	m.state = LoggingIn
	m.mu.Unlock()

	payload, err := m.client.Do(ctx, http.MethodPost, "/api/auth/login", loginRequest{Email: email, Password: password})
	if err != nil {
		m.mu.Lock()
		m.state = LoggedOut
		m.mu.Unlock()
		return fmt.Errorf("login: %w", err)
	}

	var grant tokenGrant
	if err := api.DecodeInto(payload, &grant); err != nil {
		m.mu.Lock()
		m.state = LoggedOut
		m.mu.Unlock()
		return fmt.Errorf("login: %w", err)
	}

	m.beginSession(ctx, grant, rememberMe)
	evt := m.log.Info().Bool("remember_me", rememberMe)
	if grant.User != nil {
		evt = evt.Int64("user_id", grant.User.ID)
	}
	evt.Msg("logged in")
	return nil
}

// beginSession installs a token grant and persists it to the selected scope.
func (m *Manager) beginSession(ctx context.Context, grant tokenGrant, rememberMe bool) {
	m.mu.Lock()
	m.state = LoggedIn
	m.accessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		m.refreshToken = grant.RefreshToken
	}
	if grant.User != nil {
		u := *grant.User
		m.user = &u
	}
	m.rememberMe = rememberMe
	creds := store.Credentials{
		AccessToken:  m.accessToken,
		RefreshToken: m.refreshToken,
		SavedAt:      m.nowFunc(),
	}
	m.mu.Unlock()

	active, inactive := m.scoped, m.durable
	if rememberMe {
		active, inactive = m.durable, m.scoped
	}
	if err := active.Save(ctx, creds); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist credentials")
	}
	if err := inactive.Clear(ctx); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear inactive credential scope")
	}
}

// Logout notifies the server best-effort and always completes client-side:
// both storage scopes are cleared and the state resets to LoggedOut even
// when the server call fails.
func (m *Manager) Logout(ctx context.Context) {
	if _, err := m.client.Do(ctx, http.MethodPost, "/api/auth/logout", nil); err != nil {
		m.log.Warn().Err(err).Msg("server logout failed, completing client-side")
	}
	m.reset(ctx)
	m.log.Info().Msg("logged out")
}

// ForceLogout ends the session client-side without a server round trip.
// Invoked by the HTTP client when a request still gets 401 after refresh.
func (m *Manager) ForceLogout(ctx context.Context) {
	m.expireSession(ctx)
}

// TryAutoLogin attempts silent re-authentication from stored credentials.
// Returns ErrNoStoredSession when nothing is stored (fresh visitor). A
// stored-but-rejected credential triggers the full expiry flow: storage
// cleared, LoggedOut, notice surfaced, delayed redirect.
func (m *Manager) TryAutoLogin(ctx context.Context) error {
	creds, rememberMe, err := m.loadStored(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.state = Refreshing
	m.refreshToken = creds.RefreshToken
	m.mu.Unlock()

	grant, err := m.requestRefresh(ctx, creds.RefreshToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("auto-login failed")
		m.expireSession(ctx)
		return fmt.Errorf("auto login: %w", err)
	}

	m.beginSession(ctx, grant, rememberMe)

	if grant.User == nil {
		if err := m.fetchProfile(ctx); err != nil {
			m.log.Warn().Err(err).Msg("failed to fetch profile after auto-login")
		}
	}
	m.log.Info().Bool("remember_me", rememberMe).Msg("auto-login succeeded")
	return nil
}

func (m *Manager) loadStored(ctx context.Context) (*store.Credentials, bool, error) {
	creds, err := m.durable.Load(ctx)
	if err == nil {
		return creds, true, nil
	}
	if !errors.Is(err, store.ErrNoCredentials) {
		return nil, false, fmt.Errorf("load durable credentials: %w", err)
	}

	creds, err = m.scoped.Load(ctx)
	if err == nil {
		return creds, false, nil
	}
	if !errors.Is(err, store.ErrNoCredentials) {
		return nil, false, fmt.Errorf("load session credentials: %w", err)
	}
	return nil, false, ErrNoStoredSession
}

// RefreshAccessToken performs the silent refresh. Concurrent callers are
// collapsed into one in-flight refresh; all of them observe its outcome.
// On failure the session is expired: storage cleared, notice surfaced,
// delayed redirect to login.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	m.mu.Lock()
	if call := m.inflight; call != nil {
		m.mu.Unlock()
		<-call.done
		return call.err
	}
	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	refreshToken := m.refreshToken
	m.state = Refreshing
	m.mu.Unlock()

	err := m.doRefresh(ctx, refreshToken)

	m.mu.Lock()
	call.err = err
	m.inflight = nil
	m.mu.Unlock()
	close(call.done)
	return err
}

func (m *Manager) doRefresh(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		m.expireSession(ctx)
		return ErrNotLoggedIn
	}

	grant, err := m.requestRefresh(ctx, refreshToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("token refresh failed")
		m.expireSession(ctx)
		return fmt.Errorf("refresh: %w", err)
	}

	m.mu.Lock()
	rememberMe := m.rememberMe
	m.mu.Unlock()
	m.beginSession(ctx, grant, rememberMe)
	m.log.Debug().Msg("access token refreshed")
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (m *Manager) requestRefresh(ctx context.Context, refreshToken string) (tokenGrant, error) {
	payload, err := m.client.Do(ctx, http.MethodPost, m.cfg.RefreshPath, refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return tokenGrant{}, err
	}
	var grant tokenGrant
	if err := api.DecodeInto(payload, &grant); err != nil {
		return tokenGrant{}, err
	}
	return grant, nil
}

func (m *Manager) fetchProfile(ctx context.Context) error {
	payload, err := m.client.Do(ctx, http.MethodGet, "/api/users/me", nil)
	if err != nil {
		return err
	}
	var profile UserProfile
	if err := api.DecodeInto(payload, &profile); err != nil {
		return err
	}
	m.SetUser(profile)
	return nil
}

// SetUser replaces the current user profile. A profile identical in the
// identity-relevant fields (id, nickname, club, profile image) is a no-op
// so downstream consumers see no redundant update.
func (m *Manager) SetUser(next UserProfile) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user != nil && sameIdentity(*m.user, next) {
		return false
	}
	u := next
	m.user = &u
	return true
}

// expireSession forces LoggedOut, clears both scopes, surfaces the expiry
// notice, and redirects to login after the grace delay.
func (m *Manager) expireSession(ctx context.Context) {
	m.reset(ctx)

	if m.hooks.OnSessionExpired != nil {
		m.hooks.OnSessionExpired(sessionExpiredNotice)
	}
	if m.hooks.Redirect != nil {
		target := m.cfg.LoginTarget
		// Delayed so the notice renders before navigation.
		m.afterFn(m.cfg.NoticeDelay, func() {
			m.hooks.Redirect(target)
		})
	}
}

// reset clears in-memory session state and both storage scopes.
func (m *Manager) reset(ctx context.Context) {
	m.mu.Lock()
	m.state = LoggedOut
	m.user = nil
	m.accessToken = ""
	m.refreshToken = ""
	m.rememberMe = false
	m.mu.Unlock()

	if err := m.durable.Clear(ctx); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear durable credentials")
	}
	if err := m.scoped.Clear(ctx); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear session credentials")
	}
}
