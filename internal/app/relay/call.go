package relay

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Call signals are relayed without any call state; duplicates and
// out-of-order signals pass through unchanged.

func (r *Relay) callSignal(p callPayload) core.CallSignal {
	return core.CallSignal{
		ActorConnectionID: p.Sender,
		RoomID:            p.RoomID,
		Timestamp:         r.Now().UnixMilli(),
	}
}

func (r *Relay) handleCallUser(sid domain.ConnID, raw json.RawMessage) error {
	p, err := decode[callPayload](raw)
	if err != nil {
		return err
	}
	if err := p.require(true, true); err != nil {
		return err
	}
	if !r.Rooms.IsMember(p.RoomID, p.TargetSocketID) {
		return fmt.Errorf("%w: %s", ErrNotInRoom, p.RoomID)
	}
	r.send(p.TargetSocketID, core.EventIncomingCall, r.callSignal(p))
	log.Info().Str("module", "relay").Str("sid", string(sid)).Str("room", string(p.RoomID)).Str("target", string(p.TargetSocketID)).Msg("call")
	return nil
}

// handleCallReply covers call-accepted and call-rejected.
func (r *Relay) handleCallReply(sid domain.ConnID, event core.EventType, raw json.RawMessage) error {
	p, err := decode[callPayload](raw)
	if err != nil {
		return err
	}
	if err := p.require(false, true); err != nil {
		return err
	}
	r.send(p.TargetSocketID, event, r.callSignal(p))
	log.Info().Str("module", "relay").Str("sid", string(sid)).Str("event", string(event)).Str("target", string(p.TargetSocketID)).Msg("call reply")
	return nil
}

func (r *Relay) handleEndCall(sid domain.ConnID, raw json.RawMessage) error {
	p, err := decode[callPayload](raw)
	if err != nil {
		return err
	}
	if err := p.require(true, false); err != nil {
		return err
	}
	n := r.fanout(r.Rooms.Members(p.RoomID), "", core.EventCallEnded, r.callSignal(p))
	log.Info().Str("module", "relay").Str("sid", string(sid)).Str("room", string(p.RoomID)).Int("recipients", n).Msg("call ended")
	return nil
}
