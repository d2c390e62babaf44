package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically deletes rooms that are empty and older than staleAfter.
// Rooms normally disappear on the leave that empties them; this only catches
// records leaked by inconsistent state.
type Sweeper struct {
	rooms      core.RoomStore
	interval   time.Duration
	staleAfter time.Duration
	exec       func(func())
	now        func() time.Time

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewSweeper builds a sweeper. exec runs each sweep on the caller's event
// loop; nil runs it on the sweeper goroutine.
func NewSweeper(rooms core.RoomStore, interval, staleAfter time.Duration, exec func(func())) *Sweeper {
	if exec == nil {
		exec = func(f func()) { f() }
	}
	return &Sweeper{
		rooms:      rooms,
		interval:   interval,
		staleAfter: staleAfter,
		exec:       exec,
		now:        time.Now,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	go s.run(ctx)
	log.Info().Str("module", "app.sweeper").Dur("interval", s.interval).Dur("stale_after", s.staleAfter).Msg("sweeper started")
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.exec(func() { s.Sweep() })
		}
	}
}

// Sweep deletes every stale empty room and returns their ids.
func (s *Sweeper) Sweep() []domain.RoomID {
	swept := s.rooms.SweepEmpty(s.now().Add(-s.staleAfter))
	for _, id := range swept {
		log.Info().Str("module", "app.sweeper").Str("room", string(id)).Msg("stale empty room deleted")
	}
	return swept
}

// Stop halts the ticker and waits for the loop to exit.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.stopChan == nil {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stopChan) })

	select {
	case <-s.doneChan:
		log.Info().Str("module", "app.sweeper").Msg("sweeper stopped")
		return nil
	case <-ctx.Done():
		log.Warn().Str("module", "app.sweeper").Msg("sweeper stop timed out")
		return ctx.Err()
	}
}
