// Package signal is the websocket boundary of the relay: it accepts
// connections, pumps frames in and out, and feeds everything to the Hub.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
	errShutdown     = errors.New("server shutting down")
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

type SignalWSController struct {
	Hub      *Hub
	Registry *app.Registry
	Limiter  *ConnRateLimiter

	opts     Options
	upgrader websocket.Upgrader

	// base is canceled by CloseAll and tears down every connection.
	base       context.Context
	cancelBase context.CancelFunc
	pumps      *conc.WaitGroup
}

func NewSignalWSController(hub *Hub, reg *app.Registry, limiter *ConnRateLimiter, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	base, cancel := context.WithCancel(context.Background())
	return &SignalWSController{
		Hub:      hub,
		Registry: reg,
		Limiter:  limiter,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
		base:       base,
		cancelBase: cancel,
		pumps:      conc.NewWaitGroup(),
	}
}

// originChecker allows everything when no origin list (or "*") is configured.
// Requests without an Origin header come from non-browser clients and pass.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := domain.NewConnID()
	client := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client", client).Msg("new WS connection")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}

	connCtx, cancel := context.WithCancelCause(ctx)
	stopBase := context.AfterFunc(ctl.base, func() { cancel(errShutdown) })
	ctl.Registry.BindSignal(sid, client, conn, func() { cancel(ErrBackpressure) })

	if greeting, err := core.EncodeEnvelope(core.EventConnected, core.Connected{ConnectionID: sid}); err == nil {
		_ = conn.TrySend(greeting)
	}

	ctl.pumps.Go(func() { ctl.writePump(connCtx, sid, conn) })
	ctl.pumps.Go(func() {
		defer stopBase()
		ctl.readPump(connCtx, cancel, sid, conn)
	})
}

// CloseAll disconnects every live connection and waits until their pumps
// have reported the disconnects to the hub.
func (ctl *SignalWSController) CloseAll(ctx context.Context) error {
	ctl.cancelBase()
	done := make(chan struct{})
	go func() {
		ctl.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Str("module", "signal").Msg("all connections closed")
		return nil
	case <-ctx.Done():
		log.Warn().Str("module", "signal").Msg("close connections timed out")
		return ctx.Err()
	}
}
