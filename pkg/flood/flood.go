// Package flood rate-limits inbound messages per sender. It is a hardening
// layer in front of the flow dispatcher and is independent of the
// per-command cooldown, which gates command invocations, not messages.
package flood

import (
	"sync"

	"golang.org/x/time/rate"
)

// Guard holds one token bucket per sender id.
type Guard struct {
	perMinute int
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGuard allows perMinute messages per sender with the given burst.
// perMinute <= 0 disables the guard.
func NewGuard(perMinute, burst int) *Guard {
	if burst <= 0 {
		burst = 1
	}
	return &Guard{
		perMinute: perMinute,
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a message from senderID may be processed now.
func (g *Guard) Allow(senderID string) bool {
	if g == nil || g.perMinute <= 0 {
		return true
	}

	g.mu.Lock()
	lim, ok := g.limiters[senderID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(g.perMinute)/60.0), g.burst)
		g.limiters[senderID] = lim
	}
	g.mu.Unlock()

	return lim.Allow()
}
