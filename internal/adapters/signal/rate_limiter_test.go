package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnRateLimiter(t *testing.T) {
	rl := NewConnRateLimiter(0.001, 2)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "buckets are per connection")

	rl.Forget("a")
	assert.Equal(t, 1, rl.Len())
	assert.True(t, rl.Allow("a"))
}

func TestConnRateLimiter_Disabled(t *testing.T) {
	rl := NewConnRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("a"))
	}
	assert.Zero(t, rl.Len())

	var none *ConnRateLimiter
	assert.True(t, none.Allow("a"))
	none.Forget("a")
}
