package relay

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

// roomRef accepts either a bare JSON string or an object with roomId.
type roomRef struct {
	RoomID   domain.RoomID   `json:"roomId"`
	Metadata domain.Metadata `json:"metadata,omitempty"`
}

func (p *roomRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*p = roomRef{RoomID: domain.RoomID(id)}
		return nil
	}
	type plain roomRef
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = roomRef(v)
	return nil
}

func (p roomRef) validate() error {
	if p.RoomID == "" {
		return missing("roomId")
	}
	return nil
}

// isNull reports a field that was left out or sent as JSON null. Any other
// value, including "" or {}, is forwarded untouched.
func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// descriptionPayload keeps the session description opaque: peers own its shape.
type descriptionPayload struct {
	RoomID domain.RoomID   `json:"roomId"`
	SDP    json.RawMessage `json:"sdp"`
	Sender domain.ConnID   `json:"sender"`
	Target domain.ConnID   `json:"target,omitempty"`
}

func (p descriptionPayload) validate() error {
	var absent []string
	if p.RoomID == "" {
		absent = append(absent, "roomId")
	}
	if isNull(p.SDP) {
		absent = append(absent, "sdp")
	}
	if p.Sender == "" {
		absent = append(absent, "sender")
	}
	if len(absent) > 0 {
		return missing(absent...)
	}
	return nil
}

type candidatePayload struct {
	RoomID    domain.RoomID   `json:"roomId"`
	Candidate json.RawMessage `json:"candidate"`
	Sender    domain.ConnID   `json:"sender"`
	Target    domain.ConnID   `json:"target,omitempty"`
}

func (p candidatePayload) validate() error {
	var absent []string
	if p.RoomID == "" {
		absent = append(absent, "roomId")
	}
	if isNull(p.Candidate) {
		absent = append(absent, "candidate")
	}
	if p.Sender == "" {
		absent = append(absent, "sender")
	}
	if len(absent) > 0 {
		return missing(absent...)
	}
	return nil
}

type chatPayload struct {
	RoomID  domain.RoomID `json:"roomId"`
	Message string        `json:"message"`
	Sender  domain.ConnID `json:"sender"`
}

func (p chatPayload) validate() error {
	var absent []string
	if p.RoomID == "" {
		absent = append(absent, "roomId")
	}
	if p.Message == "" {
		absent = append(absent, "message")
	}
	if p.Sender == "" {
		absent = append(absent, "sender")
	}
	if len(absent) > 0 {
		return missing(absent...)
	}
	return nil
}

// callPayload serves every call event; which fields are required depends on
// the event.
type callPayload struct {
	RoomID         domain.RoomID `json:"roomId"`
	TargetSocketID domain.ConnID `json:"targetSocketId"`
	Sender         domain.ConnID `json:"sender"`
}

func (p callPayload) require(room, target bool) error {
	var absent []string
	if room && p.RoomID == "" {
		absent = append(absent, "roomId")
	}
	if target && p.TargetSocketID == "" {
		absent = append(absent, "targetSocketId")
	}
	if p.Sender == "" {
		absent = append(absent, "sender")
	}
	if len(absent) > 0 {
		return missing(absent...)
	}
	return nil
}

// decode unmarshals an event payload; an absent payload yields the zero value
// so validation reports the missing fields.
func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if isNull(raw) {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return v, nil
}
