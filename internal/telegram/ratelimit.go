package telegram

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter allows each user limit messages per window, refilled evenly.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[int64]*visitor
	every    rate.Limit
	burst    int
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[int64]*visitor),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
	}
}

func (rl *RateLimiter) IsAllowed(userID int64) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.visitors[userID] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

// Cleanup forgets users not seen for longer than expiry.
func (rl *RateLimiter) Cleanup(expiry time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for id, v := range rl.visitors {
		if time.Since(v.lastSeen) > expiry {
			delete(rl.visitors, id)
		}
	}
}
