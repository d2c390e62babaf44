package core

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/domain"
)

type EventType string

// Inbound.
const (
	EventJoin         EventType = "join"
	EventLeave        EventType = "leave"
	EventOffer        EventType = "offer"
	EventAnswer       EventType = "answer"
	EventICECandidate EventType = "ice-candidate"
	EventChatMessage  EventType = "chat-message"
	EventCallUser     EventType = "call-user"
	EventCallAccepted EventType = "call-accepted"
	EventCallRejected EventType = "call-rejected"
	EventEndCall      EventType = "end-call"
	EventPing         EventType = "ping"
)

// Outbound only. offer/answer/ice-candidate/chat-message/call-accepted/
// call-rejected keep their inbound names.
const (
	EventConnected        EventType = "connected"
	EventRoomUpdate       EventType = "room:update"
	EventJoined           EventType = "joined"
	EventLeft             EventType = "left"
	EventIncomingCall     EventType = "incoming-call"
	EventCallEnded        EventType = "call-ended"
	EventUserDisconnected EventType = "user-disconnected"
	EventError            EventType = "error"
	EventPong             EventType = "pong"
)

// room:update actions.
const (
	ActionUserJoined       = "user-joined"
	ActionUserLeft         = "user-left"
	ActionUserDisconnected = "user-disconnected"
)

// Envelope is the single wire shape in both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeEnvelope marshals payload and wraps it into a ready-to-send frame.
func EncodeEnvelope(event EventType, payload any) (Frame, error) {
	env := Envelope{Type: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

type Connected struct {
	ConnectionID domain.ConnID `json:"connectionId"`
}

type RoomUpdate struct {
	RoomID             domain.RoomID   `json:"roomId"`
	Members            []domain.Member `json:"members"`
	Action             string          `json:"action"`
	AffectedConnection domain.ConnID   `json:"affectedConnection"`
}

// MembershipAck answers joined/left directly to the acting connection.
type MembershipAck struct {
	RoomID       domain.RoomID   `json:"roomId"`
	ConnectionID domain.ConnID   `json:"connectionId"`
	Members      []domain.Member `json:"members"`
}

// SignalRelay carries an opaque negotiation payload (SDP or ICE candidate)
// exactly as the sender wrote it.
type SignalRelay struct {
	Payload json.RawMessage `json:"payload"`
	Sender  domain.ConnID   `json:"sender"`
	RoomID  domain.RoomID   `json:"roomId"`
}

type ChatMessage struct {
	ID        string        `json:"id"`
	Message   string        `json:"message"`
	Sender    domain.ConnID `json:"sender"`
	RoomID    domain.RoomID `json:"roomId"`
	Time      string        `json:"time"`
	Timestamp int64         `json:"timestamp"`
}

type CallSignal struct {
	ActorConnectionID domain.ConnID `json:"actorConnectionId"`
	RoomID            domain.RoomID `json:"roomId"`
	Timestamp         int64         `json:"timestamp"`
}

type UserDisconnected struct {
	DisconnectedConnection domain.ConnID   `json:"disconnectedConnection"`
	RemainingMembers       []domain.Member `json:"remainingMembers"`
	Reason                 string          `json:"reason,omitempty"`
}

type ErrorNotice struct {
	Message string `json:"message"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}
