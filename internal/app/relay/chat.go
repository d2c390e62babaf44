package relay

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func (r *Relay) handleChat(sid domain.ConnID, raw json.RawMessage) error {
	p, err := decode[chatPayload](raw)
	if err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}

	now := r.Now()
	r.fanout(r.Rooms.Members(p.RoomID), "", core.EventChatMessage, core.ChatMessage{
		ID:        uuid.NewString(),
		Message:   strings.TrimSpace(p.Message),
		Sender:    p.Sender,
		RoomID:    p.RoomID,
		Time:      now.UTC().Format(time.RFC3339),
		Timestamp: now.UnixMilli(),
	})
	return nil
}
