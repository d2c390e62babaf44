package relay

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

func (r *Relay) handleDescription(sid domain.ConnID, event core.EventType, raw json.RawMessage) error {
	p, err := decode[descriptionPayload](raw)
	if err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	r.forward(sid, event, p.RoomID, p.Target, core.SignalRelay{
		Payload: p.SDP,
		Sender:  p.Sender,
		RoomID:  p.RoomID,
	})
	return nil
}

func (r *Relay) handleCandidate(sid domain.ConnID, raw json.RawMessage) error {
	p, err := decode[candidatePayload](raw)
	if err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	r.forward(sid, core.EventICECandidate, p.RoomID, p.Target, core.SignalRelay{
		Payload: p.Candidate,
		Sender:  p.Sender,
		RoomID:  p.RoomID,
	})
	return nil
}

// forward delivers to target when one is named, otherwise to every other
// member of room. The sender's claimed id is echoed as-is.
func (r *Relay) forward(sid domain.ConnID, event core.EventType, room domain.RoomID, target domain.ConnID, msg core.SignalRelay) {
	if target != "" {
		r.send(target, event, msg)
		log.Debug().Str("module", "relay").Str("sid", string(sid)).Str("event", string(event)).Str("target", string(target)).Msg("relayed direct")
		return
	}
	n := r.fanout(r.Rooms.Members(room), sid, event, msg)
	log.Debug().Str("module", "relay").Str("sid", string(sid)).Str("event", string(event)).Str("room", string(room)).Int("recipients", n).Msg("relayed to room")
}
