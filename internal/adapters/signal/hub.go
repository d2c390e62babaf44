package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/Huddle/internal/domain"
)

// Dispatcher consumes connection events. Hub calls it from one goroutine only.
type Dispatcher interface {
	Dispatch(sid domain.ConnID, data []byte)
	Disconnect(sid domain.ConnID, reason string)
}

// connEvent is either an inbound frame or, when gone is set, a departure.
// Both share one queue so a connection's frames are handled before its
// disconnect.
type connEvent struct {
	sid    domain.ConnID
	data   []byte
	gone   bool
	reason string
}

// Hub serializes every inbound frame, disconnect and scheduled task onto the
// goroutine running Run, in arrival order.
type Hub struct {
	d Dispatcher

	events chan connEvent
	tasks  chan func()

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func NewHub(d Dispatcher, queue int) *Hub {
	if queue < 0 {
		queue = 0
	}
	return &Hub{
		d:        d,
		events:   make(chan connEvent, queue),
		tasks:    make(chan func(), 1),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.doneChan)
	log.Info().Str("module", "signal.hub").Msg("hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal.hub").Msg("hub ctx done")
			return
		case <-h.stopChan:
			log.Info().Str("module", "signal.hub").Msg("hub stopped")
			return
		case ev := <-h.events:
			if ev.gone {
				h.safely("disconnect", ev.sid, func() { h.d.Disconnect(ev.sid, ev.reason) })
			} else {
				h.safely("dispatch", ev.sid, func() { h.d.Dispatch(ev.sid, ev.data) })
			}
		case task := <-h.tasks:
			h.safely("task", "", task)
		}
	}
}

// safely keeps the loop alive when a handler panics.
func (h *Hub) safely(what string, sid domain.ConnID, f func()) {
	var pc panics.Catcher
	pc.Try(f)
	if rec := pc.Recovered(); rec != nil {
		log.Error().
			Str("module", "signal.hub").
			Str("op", what).
			Str("sid", string(sid)).
			Str("panic", fmt.Sprint(rec.Value)).
			Bytes("stack", rec.Stack).
			Msg("recovered panic")
	}
}

// Submit queues a frame from sid. It returns false once the hub has exited.
func (h *Hub) Submit(sid domain.ConnID, data []byte) bool {
	return h.enqueue(connEvent{sid: sid, data: data})
}

func (h *Hub) Disconnect(sid domain.ConnID, reason string) bool {
	return h.enqueue(connEvent{sid: sid, gone: true, reason: reason})
}

// enqueue refuses work once Run has returned.
func (h *Hub) enqueue(ev connEvent) bool {
	if h.exited() {
		return false
	}
	select {
	case h.events <- ev:
		return true
	case <-h.doneChan:
		return false
	}
}

func (h *Hub) exited() bool {
	select {
	case <-h.doneChan:
		return true
	default:
		return false
	}
}

// Exec runs f on the hub goroutine. After the hub exits f is discarded.
func (h *Hub) Exec(f func()) {
	if h.exited() {
		return
	}
	select {
	case h.tasks <- f:
	case <-h.doneChan:
	}
}

func (h *Hub) Done() <-chan struct{} {
	return h.doneChan
}

// Stop ends Run and waits for it to return.
func (h *Hub) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stopChan) })
	select {
	case <-h.doneChan:
		return nil
	case <-ctx.Done():
		log.Warn().Str("module", "signal.hub").Msg("hub stop timed out")
		return ctx.Err()
	}
}
