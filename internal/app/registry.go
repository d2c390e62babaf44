package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	RoomID      domain.RoomID
	Metadata    domain.Metadata
	JoinedAt    time.Time
	ClientToken string
	Signal      core.SignalConnection
	Cancel      context.CancelFunc
}

// Registry is the connection registry: one entry per live transport session.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnID]*connEntry),
		now:   time.Now,
	}
}

// BindSignal attaches the adapter-owned transport to a connection.
func (r *Registry) BindSignal(sid domain.ConnID, clientToken string, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[sid]
	if !ok {
		e = &connEntry{}
		r.conns[sid] = e
	}
	e.ClientToken = clientToken
	e.Signal = sig
	e.Cancel = cancel
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("client", clientToken).Msg("bound signal")
}

// Ensure registers sid if it has never been seen.
func (r *Registry) Ensure(sid domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[sid]; !ok {
		r.conns[sid] = &connEntry{}
	}
}

func (r *Registry) Signal(sid domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[sid]; ok && e.Signal != nil {
		return e.Signal, true
	}
	return nil, false
}

func (r *Registry) RoomOf(sid domain.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[sid]
	if !ok || e.RoomID == "" {
		return "", false
	}
	return e.RoomID, true
}

func (r *Registry) Metadata(sid domain.ConnID) domain.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[sid]; ok {
		return e.Metadata
	}
	return nil
}

// UpdateRoom records a successful join. Unknown connections are ignored.
func (r *Registry) UpdateRoom(sid domain.ConnID, room domain.RoomID, meta domain.Metadata) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[sid]
	if !ok {
		return false
	}
	if e.RoomID != room {
		e.JoinedAt = r.now()
	}
	e.RoomID = room
	if meta != nil {
		e.Metadata = meta
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("updated room")
	return true
}

// RemoveRoom clears the room association if it still points at room.
func (r *Registry) RemoveRoom(sid domain.ConnID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[sid]; ok && e.RoomID == room {
		e.RoomID = ""
		e.JoinedAt = time.Time{}
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("removed room association")
	}
}

func (r *Registry) Unbind(sid domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[sid]; !ok {
		return false
	}
	delete(r.conns, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind connection")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Cancel tears down the transport of sid; the adapter then reports the disconnect.
func (r *Registry) Cancel(sid domain.ConnID) bool {
	r.mu.RLock()
	var cancel context.CancelFunc
	if e, ok := r.conns[sid]; ok {
		cancel = e.Cancel
	}
	r.mu.RUnlock()
	if cancel == nil {
		return false
	}
	cancel()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled connection")
	return true
}
