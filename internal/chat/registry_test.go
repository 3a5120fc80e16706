package chat

import "testing"

func TestOpenPopupIsIdempotentPerRoom(t *testing.T) {
	r := NewWidgetRegistry()

	r.OpenPopup(5, "Saturday Bears Meetup", 3, "")
	r.OpenPopup(5, "Saturday Bears Meetup", 4, "captain")

	rooms := r.Rooms()
	if len(rooms) != 1 {
		t.Fatalf("expected one entry for room 5, got %d", len(rooms))
	}
	got, ok := r.Get(5)
	if !ok {
		t.Fatalf("expected room 5 open")
	}
	if got.MemberCount != 4 || got.LeaderNickname != "captain" {
		t.Fatalf("expected latest metadata, got %+v", got)
	}
}

func TestClosePopupRemovesEntry(t *testing.T) {
	r := NewWidgetRegistry()

	r.OpenPopup(5, "Room", 1, "")
	r.OpenPopup(9, "Other", 2, "")
	r.ClosePopup(5)

	if r.IsOpen(5) {
		t.Fatalf("room 5 should be closed")
	}
	if !r.IsOpen(9) {
		t.Fatalf("room 9 should still be open")
	}
	// Closing a room that isn't open is a no-op.
	r.ClosePopup(5)
}

func TestSetLeaderNicknamePatchesOnlyOpenRooms(t *testing.T) {
	r := NewWidgetRegistry()

	r.OpenPopup(5, "Room", 1, "")
	r.SetLeaderNickname(5, "captain")
	if got, _ := r.Get(5); got.LeaderNickname != "captain" {
		t.Fatalf("expected leader patched, got %+v", got)
	}

	// Resolution completing after the popup closed changes nothing.
	r.ClosePopup(5)
	r.SetLeaderNickname(5, "late-arrival")
	if r.IsOpen(5) {
		t.Fatalf("patching a closed room must not resurrect it")
	}
}
