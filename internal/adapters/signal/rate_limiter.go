package signal

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dkeye/Huddle/internal/domain"
)

// ConnRateLimiter keeps one token bucket per connection for inbound frames.
type ConnRateLimiter struct {
	mu       sync.Mutex
	limiters map[domain.ConnID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewConnRateLimiter allows perSecond frames with the given burst. A
// non-positive perSecond disables limiting.
func NewConnRateLimiter(perSecond float64, burst int) *ConnRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ConnRateLimiter{
		limiters: make(map[domain.ConnID]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *ConnRateLimiter) Allow(id domain.ConnID) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	l, ok := rl.limiters[id]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[id] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

func (rl *ConnRateLimiter) Forget(id domain.ConnID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.limiters, id)
	rl.mu.Unlock()
}

func (rl *ConnRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
