package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter(t *testing.T) {
	t.Run("allows up to max hits then rejects", func(t *testing.T) {
		l := NewLimiter(time.Hour, 3)
		for i := 0; i < 3; i++ {
			assert.True(t, l.Allow("10.0.0.1"), "hit %d should be allowed", i+1)
		}
		assert.False(t, l.Allow("10.0.0.1"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := NewLimiter(time.Hour, 1)
		assert.True(t, l.Allow("a"))
		assert.False(t, l.Allow("a"))
		assert.True(t, l.Allow("b"))
	})

	t.Run("reset restores the bucket", func(t *testing.T) {
		l := NewLimiter(time.Hour, 1)
		assert.True(t, l.Allow("a"))
		assert.False(t, l.Allow("a"))
		l.Reset("a")
		assert.True(t, l.Allow("a"))
	})
}
