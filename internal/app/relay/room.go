package relay

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

func (r *Relay) handleJoin(sid domain.ConnID, raw json.RawMessage) error {
	p, err := decode[roomRef](raw)
	if err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}

	// one room per connection: switching rooms is a full leave first
	if current, ok := r.Registry.RoomOf(sid); ok && current != p.RoomID {
		r.leave(sid, current)
		log.Info().Str("module", "relay").Str("sid", string(sid)).Str("from_room", string(current)).Msg("left previous room")
	}

	members := r.Rooms.Join(sid, p.RoomID, p.Metadata)
	r.Registry.UpdateRoom(sid, p.RoomID, p.Metadata)

	r.fanout(members, "", core.EventRoomUpdate, core.RoomUpdate{
		RoomID:             p.RoomID,
		Members:            members,
		Action:             core.ActionUserJoined,
		AffectedConnection: sid,
	})
	r.send(sid, core.EventJoined, core.MembershipAck{
		RoomID:       p.RoomID,
		ConnectionID: sid,
		Members:      members,
	})

	log.Info().
		Str("module", "relay").
		Str("sid", string(sid)).
		Str("room", string(p.RoomID)).
		Str("name", p.Metadata.DisplayName()).
		Int("members", len(members)).
		Msg("join")
	return nil
}

func (r *Relay) handleLeave(sid domain.ConnID, raw json.RawMessage) error {
	p, err := decode[roomRef](raw)
	if err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	r.leave(sid, p.RoomID)
	return nil
}

// leave removes sid from room, tells the remaining members and always
// acknowledges sid, whether or not the room survived.
func (r *Relay) leave(sid domain.ConnID, room domain.RoomID) {
	wasMember := r.Rooms.IsMember(room, sid)
	remaining, remains := r.Rooms.Leave(sid, room)
	r.Registry.RemoveRoom(sid, room)

	if wasMember && remains {
		r.fanout(remaining, "", core.EventRoomUpdate, core.RoomUpdate{
			RoomID:             room,
			Members:            remaining,
			Action:             core.ActionUserLeft,
			AffectedConnection: sid,
		})
	}
	r.send(sid, core.EventLeft, core.MembershipAck{
		RoomID:       room,
		ConnectionID: sid,
		Members:      nonNil(remaining),
	})

	log.Info().Str("module", "relay").Str("sid", string(sid)).Str("room", string(room)).Bool("room_deleted", !remains).Msg("leave")
}

// Disconnect reconciles a lost connection. It is idempotent: a connection
// that already left produces no broadcast.
func (r *Relay) Disconnect(sid domain.ConnID, reason string) {
	defer r.Registry.Unbind(sid)

	room, ok := r.Registry.RoomOf(sid)
	if !ok {
		log.Info().Str("module", "relay").Str("sid", string(sid)).Str("reason", reason).Msg("disconnect without room")
		return
	}

	remaining, remains := r.Rooms.Leave(sid, room)
	if remains {
		r.fanout(remaining, "", core.EventRoomUpdate, core.RoomUpdate{
			RoomID:             room,
			Members:            remaining,
			Action:             core.ActionUserDisconnected,
			AffectedConnection: sid,
		})
		r.fanout(remaining, "", core.EventUserDisconnected, core.UserDisconnected{
			DisconnectedConnection: sid,
			RemainingMembers:       remaining,
			Reason:                 reason,
		})
	}

	log.Info().
		Str("module", "relay").
		Str("sid", string(sid)).
		Str("room", string(room)).
		Str("reason", reason).
		Bool("room_deleted", !remains).
		Msg("disconnect")
}
