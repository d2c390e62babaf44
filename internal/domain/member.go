package domain

import "time"

// Member represents a connection's participation in a room.
// No transport or lifecycle logic here.
type Member struct {
	ConnID   ConnID    `json:"connectionId"`
	Metadata Metadata  `json:"metadata,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewMember avoids raw literals in the store and keeps construction obvious.
func NewMember(id ConnID, meta Metadata, joinedAt time.Time) Member {
	return Member{ConnID: id, Metadata: meta, JoinedAt: joinedAt}
}
