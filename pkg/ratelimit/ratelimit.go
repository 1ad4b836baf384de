package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key, each refilling maxHits tokens
// per window.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]*rate.Limiter
	window  time.Duration
	maxHits int
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	return &Limiter{
		limits:  make(map[string]*rate.Limiter),
		window:  window,
		maxHits: maxHits,
	}
}

func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Reset forgets the bucket for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limits, key)
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limits[key]; ok {
		return lim
	}

	every := rate.Inf
	if l.maxHits > 0 && l.window > 0 {
		every = rate.Every(l.window / time.Duration(l.maxHits))
	}
	lim := rate.NewLimiter(every, l.maxHits)
	l.limits[key] = lim
	return lim
}
