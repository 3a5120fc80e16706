package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/dugoutlabs/dugout-client/internal/proto"
	"github.com/dugoutlabs/dugout-client/internal/utils"
)

// CredentialSource supplies the bearer token attached to the transport
// handshake. Implemented by session.Manager.
type CredentialSource interface {
	AccessToken() string
	TokenExpiresWithin(d time.Duration) bool
	RefreshAccessToken(ctx context.Context) error
}

// ConnState is the socket lifecycle position.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by Send when the transport is not in the
// Connected state. Sends on a closed or reconnecting socket are dropped,
// never queued.
var ErrNotConnected = errors.New("chat transport not connected")

// tokenRefreshWindow triggers a proactive refresh before dialing when the
// access token is about to expire: the handshake carries the bearer token
// and cannot be retried through the HTTP 401 path.
const tokenRefreshWindow = 30 * time.Second

// Message is one entry in a room's ordered message log.
type Message struct {
	ID     int64
	RoomID int64
	Sender string
	Text   string
	At     time.Time
}

// Handlers are presentation-layer callbacks. All optional; invoked from
// the connection's read goroutine.
type Handlers struct {
	OnMessage     func(Message)
	OnPresence    func(event, nickname string)
	OnStateChange func(ConnState)
}

// Config holds transport settings shared by all room connections.
type Config struct {
	// URL is the chat WebSocket endpoint.
	URL string
	// HeartbeatInterval is the keepalive ping period; a ping that gets no
	// answer within one interval is treated as a dead connection.
	HeartbeatInterval time.Duration
	// ReconnectDelay is the fixed pause before redialing after an
	// unexpected disconnect.
	ReconnectDelay time.Duration
}

// Connection manages one socket for one open chat room: connect with the
// session's bearer token, announce presence, append inbound messages in
// arrival order, and reconnect with a fixed delay on transport failure.
// Each popup owns exactly one Connection; Close tears it down on every
// exit path.
type Connection struct {
	roomID   int64
	nickname string
	cfg      Config
	creds    CredentialSource
	handlers Handlers
	log      zerolog.Logger

	mu       sync.Mutex
	state    ConnState
	conn     *websocket.Conn
	messages []Message
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	closed   bool
}

// NewConnection builds a connection for one room. nickname is the display
// identity announced in the enter event.
func NewConnection(roomID int64, nickname string, cfg Config, creds CredentialSource, handlers Handlers, logger *zerolog.Logger) *Connection {
	connLog := logger.With().Int64("room_id", roomID).Str("conn_id", utils.NewID()).Logger()
	return &Connection{
		roomID:   roomID,
		nickname: nickname,
		cfg:      cfg,
		creds:    creds,
		handlers: handlers,
		log:      connLog,
		state:    Disconnected,
	}
}

// Open starts the connection lifecycle. The connection keeps itself alive
// (reconnecting as needed) until ctx is canceled or Close is called.
func (c *Connection) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return errors.New("connection already open or closed")
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

func (c *Connection) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(Disconnected)

	for {
		c.setState(Connecting)

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Msg("chat dial failed")
			if !c.sleep(ctx, c.cfg.ReconnectDelay) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(Connected)

		// Announce presence. On reconnect this repeats; the server treats
		// enter as idempotent (at-least-once join delivery).
		if err := c.writeFrame(ctx, conn, proto.FrameTypeEnter, proto.EnterData{RoomID: c.roomID, Nickname: c.nickname}); err != nil {
			c.log.Warn().Err(err).Msg("failed to announce enter")
		}

		hbCtx, stopHeartbeat := context.WithCancel(ctx)
		go c.heartbeat(hbCtx, conn)

		err = c.readLoop(ctx, conn)
		stopHeartbeat()

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		c.log.Warn().Err(err).Dur("delay", c.cfg.ReconnectDelay).Msg("chat connection lost, reconnecting")
		c.setState(Connecting)
		if !c.sleep(ctx, c.cfg.ReconnectDelay) {
			return
		}
	}
}

// sleep waits for d or until ctx is canceled. It reports whether the
// full delay elapsed; false means the context ended first.
func (c *Connection) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	// The handshake carries the bearer token; refresh up front if it is
	// about to expire because the socket has no 401 retry path.
	if c.creds.TokenExpiresWithin(tokenRefreshWindow) {
		if err := c.creds.RefreshAccessToken(ctx); err != nil {
			return nil, fmt.Errorf("refresh before dial: %w", err)
		}
	}

	opts := &websocket.DialOptions{}
	if token := c.creds.AccessToken(); token != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + token},
		}
	}

	conn, _, err := websocket.Dial(ctx, c.cfg.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var frame proto.ServerFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return err
		}

		switch frame.Type {
		case proto.FrameTypeEvent:
			c.handleEvent(frame)
		case proto.FrameTypeError:
			// Protocol errors are logged and do not crash the room.
			if frame.Error != nil {
				c.log.Warn().Str("code", frame.Error.Code).Str("msg", frame.Error.Msg).Msg("chat server error")
			}
		default:
			c.log.Debug().Str("type", frame.Type).Msg("unknown chat frame")
		}
	}
}

func (c *Connection) handleEvent(frame proto.ServerFrame) {
	switch frame.Event {
	case proto.EventChat:
		var data proto.EventChatData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.log.Warn().Err(err).Msg("bad chat event payload")
			return
		}
		msg := Message{
			ID:     data.ID,
			RoomID: data.RoomID,
			Sender: data.Sender,
			Text:   data.Text,
			At:     time.UnixMilli(data.TS),
		}
		// Append in arrival order. No reordering, no dedup.
		c.mu.Lock()
		c.messages = append(c.messages, msg)
		c.mu.Unlock()
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(msg)
		}
	case proto.EventEnter, proto.EventLeave:
		var data proto.EventPresenceData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.log.Warn().Err(err).Msg("bad presence event payload")
			return
		}
		if c.handlers.OnPresence != nil {
			c.handlers.OnPresence(frame.Event, data.Nickname)
		}
	default:
		c.log.Debug().Str("event", frame.Event).Msg("unknown chat event")
	}
}

func (c *Connection) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.cfg.HeartbeatInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Warn().Err(err).Msg("heartbeat failed, closing connection")
				_ = conn.Close(websocket.StatusPolicyViolation, "heartbeat timeout")
				return
			}
		}
	}
}

// Send publishes a chat message to the room. Returns ErrNotConnected when
// the transport is closed or reconnecting; the message is dropped, not
// queued.
func (c *Connection) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}
	return c.writeFrame(ctx, conn, proto.FrameTypeChat, proto.ChatData{RoomID: c.roomID, Text: text})
}

func (c *Connection) writeFrame(ctx context.Context, conn *websocket.Conn, frameType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", frameType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Frame{Type: frameType, Data: payload}); err != nil {
		return fmt.Errorf("write %s frame: %w", frameType, err)
	}
	return nil
}

// Close tears the connection down deterministically: a best-effort leave
// frame, then socket close and lifecycle shutdown. Safe to call on every
// exit path; repeated calls are no-ops.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed || !c.started {
		c.closed = true
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	state := c.state
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if conn != nil && state == Connected {
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.writeFrame(leaveCtx, conn, proto.FrameTypeLeave, proto.LeaveData{RoomID: c.roomID}); err != nil {
			c.log.Debug().Err(err).Msg("leave notify failed")
		}
		leaveCancel()
		_ = conn.Close(websocket.StatusNormalClosure, "room closed")
	}

	cancel()
	<-done
	c.log.Info().Msg("chat connection closed")
}

// State returns the current transport state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a snapshot of the room's ordered message log.
func (c *Connection) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// RoomID returns the room this connection is bound to.
func (c *Connection) RoomID() int64 {
	return c.roomID
}

func (c *Connection) setState(next ConnState) {
	c.mu.Lock()
	changed := c.state != next
	c.state = next
	c.mu.Unlock()
	if changed && c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(next)
	}
}
