package proto

import "encoding/json"

// Frame is the envelope for messages sent to the chat server.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	// Client-to-server frame types. Enter is distinct from a chat message:
	// it announces presence in the room.
	FrameTypeEnter = "enter"
	FrameTypeLeave = "leave"
	FrameTypeChat  = "chat"

	// Server-to-client frame types.
	FrameTypeEvent = "event"
	FrameTypeError = "error"
)

// EnterData announces the sender joining a room, carrying the display
// identity shown to other members.
type EnterData struct {
	RoomID   int64  `json:"roomId"`
	Nickname string `json:"nickname"`
}

// LeaveData announces the sender leaving a room.
type LeaveData struct {
	RoomID int64 `json:"roomId"`
}

// ChatData is a chat message published to a room.
type ChatData struct {
	RoomID int64  `json:"roomId"`
	Text   string `json:"text"`
}

// ServerFrame is the envelope for messages received from the chat server.
type ServerFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// Events carried inside FrameTypeEvent frames.
const (
	EventChat  = "chat"
	EventEnter = "enter"
	EventLeave = "leave"
)

// EventChatData is a chat message delivered to room subscribers.
type EventChatData struct {
	ID     int64  `json:"id,omitempty"`
	RoomID int64  `json:"roomId"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	TS     int64  `json:"ts"`
}

// EventPresenceData notifies that a member entered or left a room.
type EventPresenceData struct {
	RoomID   int64  `json:"roomId"`
	Nickname string `json:"nickname"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
