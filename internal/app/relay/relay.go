// Package relay validates inbound signaling events and routes them between
// connections. Every method is meant to run on a single event-loop goroutine.
package relay

import (
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type Relay struct {
	Rooms    core.RoomStore
	Registry *app.Registry
	Out      core.Outbound
	Now      func() time.Time
}

func New(rooms core.RoomStore, registry *app.Registry, out core.Outbound) *Relay {
	return &Relay{
		Rooms:    rooms,
		Registry: registry,
		Out:      out,
		Now:      time.Now,
	}
}

// send is fire-and-forget: a failed delivery is logged and never stops the caller.
func (r *Relay) send(to domain.ConnID, event core.EventType, payload any) {
	if err := r.Out.Send(to, event, payload); err != nil {
		log.Debug().Err(err).Str("module", "relay").Str("to", string(to)).Str("event", string(event)).Msg("delivery dropped")
	}
}

// fanout delivers to every member except skip (empty skips nobody).
func (r *Relay) fanout(members []domain.Member, skip domain.ConnID, event core.EventType, payload any) int {
	sent := 0
	for _, m := range members {
		if m.ConnID == skip {
			continue
		}
		r.send(m.ConnID, event, payload)
		sent++
	}
	return sent
}

func (r *Relay) fail(sid domain.ConnID, event core.EventType, err error) {
	log.Warn().Err(err).Str("module", "relay").Str("sid", string(sid)).Str("event", string(event)).Msg("event rejected")
	r.send(sid, core.EventError, core.ErrorNotice{Message: err.Error()})
}

func nonNil(members []domain.Member) []domain.Member {
	if members == nil {
		return []domain.Member{}
	}
	return members
}
