package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomEntry struct {
	createdAt time.Time
	// join order; a room holds few members so linear scans are fine
	members []domain.Member
}

func (e *roomEntry) indexOf(id domain.ConnID) int {
	for i, m := range e.members {
		if m.ConnID == id {
			return i
		}
	}
	return -1
}

func (e *roomEntry) snapshot() []domain.Member {
	out := make([]domain.Member, len(e.members))
	copy(out, e.members)
	return out
}

// RoomStoreImpl is an in-memory room membership store.
// Mutations are expected from a single goroutine; the lock lets HTTP readers
// take consistent snapshots concurrently.
type RoomStoreImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomEntry
	now   func() time.Time
}

func NewRoomStore(now func() time.Time) core.RoomStore {
	if now == nil {
		now = time.Now
	}
	return &RoomStoreImpl{
		rooms: make(map[domain.RoomID]*roomEntry),
		now:   now,
	}
}

func (s *RoomStoreImpl) Join(id domain.ConnID, room domain.RoomID, meta domain.Metadata) []domain.Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.rooms[room]
	if !ok {
		entry = &roomEntry{createdAt: s.now()}
		s.rooms[room] = entry
		log.Info().Str("module", "app.rooms").Str("room", string(room)).Msg("room created")
	}

	if i := entry.indexOf(id); i >= 0 {
		if meta != nil {
			entry.members[i].Metadata = meta
		}
		return entry.snapshot()
	}

	entry.members = append(entry.members, domain.NewMember(id, meta, s.now()))
	log.Info().Str("module", "app.rooms").Str("sid", string(id)).Str("room", string(room)).Int("members", len(entry.members)).Msg("member added")
	return entry.snapshot()
}

func (s *RoomStoreImpl) Leave(id domain.ConnID, room domain.RoomID) ([]domain.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.rooms[room]
	if !ok {
		return nil, false
	}
	if i := entry.indexOf(id); i >= 0 {
		entry.members = append(entry.members[:i], entry.members[i+1:]...)
		log.Info().Str("module", "app.rooms").Str("sid", string(id)).Str("room", string(room)).Msg("member removed")
	}
	if len(entry.members) == 0 {
		delete(s.rooms, room)
		log.Info().Str("module", "app.rooms").Str("room", string(room)).Msg("room deleted")
		return nil, false
	}
	return entry.snapshot(), true
}

func (s *RoomStoreImpl) Members(room domain.RoomID) []domain.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[room]
	if !ok {
		return []domain.Member{}
	}
	return entry.snapshot()
}

func (s *RoomStoreImpl) IsMember(room domain.RoomID, id domain.ConnID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[room]
	return ok && entry.indexOf(id) >= 0
}

func (s *RoomStoreImpl) Room(room domain.RoomID) (core.RoomInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[room]
	if !ok {
		return core.RoomInfo{ID: room}, false
	}
	return core.RoomInfo{ID: room, MemberCount: len(entry.members), CreatedAt: entry.createdAt}, true
}

func (s *RoomStoreImpl) List() []core.RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(s.rooms))
	for id, entry := range s.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: len(entry.members), CreatedAt: entry.createdAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *RoomStoreImpl) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func (s *RoomStoreImpl) SocketCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, entry := range s.rooms {
		n += len(entry.members)
	}
	return n
}

func (s *RoomStoreImpl) SweepEmpty(olderThan time.Time) []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var swept []domain.RoomID
	for id, entry := range s.rooms {
		// same emptiness check as Leave, under the lock that deletes
		if len(entry.members) == 0 && entry.createdAt.Before(olderThan) {
			delete(s.rooms, id)
			swept = append(swept, id)
		}
	}
	return swept
}
