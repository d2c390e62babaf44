package core

import (
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

//go:generate mockgen -destination=mock/outbound_mock.go -package=mock . Outbound

// Outbound delivers one event to one connection. Implemented by the transport
// adapter; delivery is fire-and-forget and an error only reports that this
// particular frame was dropped.
type Outbound interface {
	Send(to domain.ConnID, event EventType, payload any) error
}

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	ID          domain.RoomID `json:"roomId"`
	MemberCount int           `json:"count"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// RoomStore owns room membership. It never touches transport resources.
type RoomStore interface {
	// Join creates the room on first use and returns the members in join order.
	Join(id domain.ConnID, room domain.RoomID, meta domain.Metadata) []domain.Member
	// Leave returns the remaining members, or false when the room no longer exists.
	Leave(id domain.ConnID, room domain.RoomID) ([]domain.Member, bool)
	Members(room domain.RoomID) []domain.Member
	IsMember(room domain.RoomID, id domain.ConnID) bool

	Room(room domain.RoomID) (RoomInfo, bool)
	List() []RoomInfo
	RoomCount() int
	SocketCount() int

	// SweepEmpty deletes empty rooms created before olderThan.
	SweepEmpty(olderThan time.Time) []domain.RoomID
}
