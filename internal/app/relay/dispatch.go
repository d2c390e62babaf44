package relay

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

// Dispatch handles one inbound frame from sid to completion. Validation and
// lookup failures, and any panic inside a handler, end up as an error event
// to sid.
func (r *Relay) Dispatch(sid domain.ConnID, data []byte) {
	r.Registry.Ensure(sid)

	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "relay").Str("sid", string(sid)).Msg("undecodable frame")
		r.fail(sid, "", ErrBadPayload)
		return
	}

	var pc panics.Catcher
	pc.Try(func() { r.route(sid, env) })
	if rec := pc.Recovered(); rec != nil {
		log.Error().
			Str("module", "relay").
			Str("sid", string(sid)).
			Str("event", string(env.Type)).
			Str("panic", fmt.Sprint(rec.Value)).
			Bytes("stack", rec.Stack).
			Msg("handler panicked")
		r.send(sid, core.EventError, core.ErrorNotice{Message: "internal error"})
	}
}

func (r *Relay) route(sid domain.ConnID, env core.Envelope) {
	log.Debug().Str("module", "relay").Str("sid", string(sid)).Str("event", string(env.Type)).Msg("inbound")

	var err error
	switch env.Type {
	case core.EventJoin:
		err = r.handleJoin(sid, env.Payload)
	case core.EventLeave:
		err = r.handleLeave(sid, env.Payload)
	case core.EventOffer, core.EventAnswer:
		err = r.handleDescription(sid, env.Type, env.Payload)
	case core.EventICECandidate:
		err = r.handleCandidate(sid, env.Payload)
	case core.EventChatMessage:
		err = r.handleChat(sid, env.Payload)
	case core.EventCallUser:
		err = r.handleCallUser(sid, env.Payload)
	case core.EventCallAccepted, core.EventCallRejected:
		err = r.handleCallReply(sid, env.Type, env.Payload)
	case core.EventEndCall:
		err = r.handleEndCall(sid, env.Payload)
	case core.EventPing:
		r.handlePing(sid)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownEvent, env.Type)
	}
	if err != nil {
		r.fail(sid, env.Type, err)
	}
}

func (r *Relay) handlePing(sid domain.ConnID) {
	r.send(sid, core.EventPong, core.Pong{Timestamp: r.Now().UnixMilli()})
}
