package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dugoutlabs/dugout-client/internal/api"
	"github.com/dugoutlabs/dugout-client/internal/chat"
	"github.com/dugoutlabs/dugout-client/internal/config"
	"github.com/dugoutlabs/dugout-client/internal/session"
	"github.com/dugoutlabs/dugout-client/internal/store/memory"
	"github.com/dugoutlabs/dugout-client/internal/store/sqlite"
)

// App wires the client core together: the shared HTTP client, the request
// coordinator, the session manager with its two credential scopes, and the
// chat widget registry. Constructed once at application start; everything
// downstream receives these by reference.
type App struct {
	cfg   config.Config
	log   *zerolog.Logger
	vault *sqlite.Vault

	Loading  *api.LoadingRegistry
	Requests *api.Coordinator
	Session  *session.Manager
	Widgets  *chat.WidgetRegistry

	mu    sync.Mutex
	conns map[int64]*chat.Connection
}

// New constructs the application. hooks carries the presentation-layer
// session-expiry callbacks.
func New(cfg config.Config, hooks session.Hooks, logger *zerolog.Logger) (*App, error) {
	key, err := sqlite.LoadOrCreateKey(cfg.VaultKeyPath)
	if err != nil {
		return nil, fmt.Errorf("vault key: %w", err)
	}
	vault, err := sqlite.New(cfg.TokenDBPath, key)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	logger.Info().Str("db_path", cfg.TokenDBPath).Msg("credential vault opened")

	client := api.NewClient(cfg.APIBaseURL, cfg.RefreshPath, cfg.RequestTimeout, logger)
	sess := session.NewManager(client, vault, memory.New(), session.Config{
		RefreshPath: cfg.RefreshPath,
		NoticeDelay: cfg.SessionNoticeDelay,
	}, hooks, logger)
	client.SetTokenSource(sess)

	loading := api.NewLoadingRegistry()

	return &App{
		cfg:      cfg,
		log:      logger,
		vault:    vault,
		Loading:  loading,
		Requests: api.NewCoordinator(client, loading, logger),
		Session:  sess,
		Widgets:  chat.NewWidgetRegistry(),
		conns:    make(map[int64]*chat.Connection),
	}, nil
}

// roomInfo is the meetup room metadata payload.
type roomInfo struct {
	RoomName       string `json:"roomName"`
	LeaderNickname string `json:"leaderNickname"`
	MemberCount    int    `json:"memberCount"`
}

// OpenRoom opens a chat popup for roomID and starts its connection.
// Opening an already-open room refreshes the popup metadata and returns
// the existing connection, so a room never holds two sockets. The room
// leader is resolved asynchronously and patched into the registry.
func (a *App) OpenRoom(ctx context.Context, roomID int64, roomName string, memberCount int, handlers chat.Handlers) (*chat.Connection, error) {
	user := a.Session.User()
	if user == nil {
		return nil, session.ErrNotLoggedIn
	}

	a.mu.Lock()
	if conn, ok := a.conns[roomID]; ok {
		a.mu.Unlock()
		a.Widgets.OpenPopup(roomID, roomName, memberCount, "")
		a.resolveLeader(ctx, roomID)
		return conn, nil
	}

	conn := chat.NewConnection(roomID, user.Nickname, chat.Config{
		URL:               a.cfg.ChatURL,
		HeartbeatInterval: a.cfg.HeartbeatInterval,
		ReconnectDelay:    a.cfg.ReconnectDelay,
	}, a.Session, handlers, a.log)
	a.conns[roomID] = conn
	a.mu.Unlock()

	a.Widgets.OpenPopup(roomID, roomName, memberCount, "")

	if err := conn.Open(ctx); err != nil {
		a.mu.Lock()
		delete(a.conns, roomID)
		a.mu.Unlock()
		a.Widgets.ClosePopup(roomID)
		return nil, err
	}

	a.resolveLeader(ctx, roomID)
	return conn, nil
}

// resolveLeader fetches room metadata and patches the leader nickname into
// the registry. If the popup closed before the fetch settles, the patch is
// a no-op.
func (a *App) resolveLeader(ctx context.Context, roomID int64) {
	go func() {
		path := "/api/meets/" + strconv.FormatInt(roomID, 10)
		payload, err := a.Requests.Get(ctx, path, api.WithKey("meet-room-"+strconv.FormatInt(roomID, 10)))
		if err != nil {
			if !api.IsCanceled(err) {
				a.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to resolve room leader")
			}
			return
		}
		var info roomInfo
		if err := api.DecodeInto(payload, &info); err != nil {
			a.log.Warn().Err(err).Int64("room_id", roomID).Msg("bad room info payload")
			return
		}
		a.Widgets.SetLeaderNickname(roomID, info.LeaderNickname)
	}()
}

// CloseRoom closes the popup and tears down the room's connection.
func (a *App) CloseRoom(roomID int64) {
	a.mu.Lock()
	conn, ok := a.conns[roomID]
	delete(a.conns, roomID)
	a.mu.Unlock()

	a.Widgets.ClosePopup(roomID)
	if ok {
		conn.Close()
	}
}

// Connection returns the live connection for roomID, if any.
func (a *App) Connection(roomID int64) (*chat.Connection, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	conn, ok := a.conns[roomID]
	return conn, ok
}

// Close tears down every open room and releases the credential vault.
func (a *App) Close() {
	a.mu.Lock()
	conns := make([]*chat.Connection, 0, len(a.conns))
	for _, conn := range a.conns {
		conns = append(conns, conn)
	}
	a.conns = make(map[int64]*chat.Connection)
	a.mu.Unlock()

	for _, conn := range conns {
		a.Widgets.ClosePopup(conn.RoomID())
		conn.Close()
	}

	if err := a.vault.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close vault")
	}
}
