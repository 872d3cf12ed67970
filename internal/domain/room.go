package domain

import "errors"

const MaxRoomIDLen = 64

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

// RoomID is the opaque external identifier of a room. Rooms are created
// lazily on first join and never destroyed; an empty roster is valid.
type RoomID string

func ValidateRoomID(id RoomID) error {
	if len(id) == 0 {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return ErrRoomIDTooLong
	}
	return nil
}
