package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var ErrUnknownConn = errors.New("unknown connection")

// Delivery is the core.Outbound of the websocket adapter. It never blocks:
// frames go into the connection's send buffer and the write pump does the I/O.
type Delivery struct {
	Registry *app.Registry
	Policy   app.Policy
}

func NewDelivery(reg *app.Registry, policy app.Policy) *Delivery {
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	return &Delivery{Registry: reg, Policy: policy}
}

func (d *Delivery) Send(to domain.ConnID, event core.EventType, payload any) error {
	sig, ok := d.Registry.Signal(to)
	if !ok {
		return ErrUnknownConn
	}
	frame, err := core.EncodeEnvelope(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal.delivery").Str("event", string(event)).Msg("encode")
		return err
	}
	if err := sig.TrySend(frame); err != nil {
		if errors.Is(err, ErrBackpressure) {
			d.onBackpressure(to, event)
		}
		return err
	}
	return nil
}

func (d *Delivery) onBackpressure(sid domain.ConnID, event core.EventType) {
	switch d.Policy.OnBackPressure(sid) {
	case app.KickMember:
		log.Warn().Str("module", "signal.delivery").Str("sid", string(sid)).Str("event", string(event)).Msg("send buffer full, closing connection")
		d.Registry.Cancel(sid)
	case app.DropFrame:
		log.Warn().Str("module", "signal.delivery").Str("sid", string(sid)).Str("event", string(event)).Msg("send buffer full, frame dropped")
	case app.NoAction:
	}
}
