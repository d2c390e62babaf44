package domain

// RoomID is chosen by the peers; any non-empty string names a room.
type RoomID string
