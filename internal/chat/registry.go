package chat

import "sync"

// OpenedRoom is the display metadata for one open chat popup.
type OpenedRoom struct {
	RoomID         int64
	RoomName       string
	MemberCount    int
	LeaderNickname string
}

// WidgetRegistry is the process-wide map of currently open chat popups,
// keyed by room ID. It is the single source of truth for "is this room
// open": the presentation layer keys its rendering by room ID so at most
// one live connection exists per room.
type WidgetRegistry struct {
	mu    sync.Mutex
	rooms map[int64]OpenedRoom
}

// NewWidgetRegistry creates an empty registry.
func NewWidgetRegistry() *WidgetRegistry {
	return &WidgetRegistry{rooms: make(map[int64]OpenedRoom)}
}

// OpenPopup inserts or overwrites the entry for roomID. Opening an
// already-open room updates its metadata in place, never duplicates.
func (r *WidgetRegistry) OpenPopup(roomID int64, roomName string, memberCount int, leaderNickname string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[roomID] = OpenedRoom{
		RoomID:         roomID,
		RoomName:       roomName,
		MemberCount:    memberCount,
		LeaderNickname: leaderNickname,
	}
}

// ClosePopup removes the entry for roomID. No-op if the room isn't open.
func (r *WidgetRegistry) ClosePopup(roomID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
}

// SetLeaderNickname patches an existing entry. No-op when the room is not
// open, so a resolution that completes after the popup closed changes
// nothing.
func (r *WidgetRegistry) SetLeaderNickname(roomID int64, nickname string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	room.LeaderNickname = nickname
	r.rooms[roomID] = room
}

// IsOpen reports whether roomID has an open popup.
func (r *WidgetRegistry) IsOpen(roomID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Get returns the entry for roomID, if open.
func (r *WidgetRegistry) Get(roomID int64) (OpenedRoom, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

// Rooms returns a snapshot of all open popups.
func (r *WidgetRegistry) Rooms() []OpenedRoom {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OpenedRoom, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}
