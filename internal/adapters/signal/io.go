package signal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

const rateLimitedMessage = "rate limit exceeded"

func (ctl *SignalWSController) writePump(ctx context.Context, sid domain.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(ctl.opts.WriteWait)
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelCauseFunc, sid domain.ConnID, c *WsSignalConn) {
	var readErr error
	defer func() {
		reason := closeReason(ctx, readErr)
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("reason", reason).Msg("readPump closing")
		cancel(nil)
		c.Close()
		ctl.Limiter.Forget(sid)
		ctl.Hub.Disconnect(sid, reason)
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		if !ctl.Limiter.Allow(sid) {
			log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("frame rate limited")
			ctl.reject(sid, c, rateLimitedMessage)
			continue
		}
		if !ctl.submit(sid, data) {
			return
		}
	}
}

// submit hands a frame to the hub; a panic here must not kill the pump.
func (ctl *SignalWSController) submit(sid domain.ConnID, data []byte) bool {
	var pc panics.Catcher
	ok := false
	pc.Try(func() { ok = ctl.Hub.Submit(sid, data) })
	if rec := pc.Recovered(); rec != nil {
		log.Error().Str("module", "signal").Str("sid", string(sid)).Str("panic", fmt.Sprint(rec.Value)).Msg("submit panicked")
		return true
	}
	return ok
}

func (ctl *SignalWSController) reject(sid domain.ConnID, c *WsSignalConn, msg string) {
	frame, err := core.EncodeEnvelope(core.EventError, core.ErrorNotice{Message: msg})
	if err != nil {
		return
	}
	if err := c.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("reject dropped")
	}
}

// closeReason names why a connection ended, for the user-disconnected notice.
func closeReason(ctx context.Context, err error) string {
	if cause := context.Cause(ctx); cause != nil {
		switch {
		case errors.Is(cause, errShutdown):
			return "server shutting down"
		case errors.Is(cause, ErrBackpressure):
			return "slow consumer"
		}
	}
	if err == nil {
		return "transport close"
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return "transport close"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "ping timeout"
	}
	return "transport error"
}
